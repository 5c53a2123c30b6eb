package cpu

// CSR addresses, matching spec.md §6's non-exhaustive table and
// lukehoban-rvgo's constant block (extended with the S/M/debug/Esperanto
// CSRs the teacher never defined).
const (
	csrFFLAGS = 0x001
	csrFRM    = 0x002
	csrFCSR   = 0x003

	csrSSTATUS    = 0x100
	csrSEDELEG    = 0x102
	csrSIDELEG    = 0x103
	csrSIE        = 0x104
	csrSTVEC      = 0x105
	csrSCOUNTEREN = 0x106
	csrSSCRATCH   = 0x140
	csrSEPC       = 0x141
	csrSCAUSE     = 0x142
	csrSTVAL      = 0x143
	csrSIP        = 0x144
	csrSATP       = 0x180

	csrMSTATUS    = 0x300
	csrMISA       = 0x301
	csrMEDELEG    = 0x302
	csrMIDELEG    = 0x303
	csrMIE        = 0x304
	csrMTVEC      = 0x305
	csrMCOUNTEREN = 0x306
	csrMSCRATCH   = 0x340
	csrMEPC       = 0x341
	csrMCAUSE     = 0x342
	csrMTVAL      = 0x343
	csrMIP        = 0x344

	csrTSELECT = 0x7a0
	csrTDATA1  = 0x7a1
	csrTDATA2  = 0x7a2
	csrTDATA3  = 0x7a3

	csrDCSR     = 0x7b0
	csrDPC      = 0x7b1
	csrDSCRATCH = 0x7b2

	csrMCYCLE       = 0xb00
	csrMINSTRET     = 0xb02
	csrMHPMCOUNTER3 = 0xb03
	// csrMHPMCOUNTER31 = 0xb1f

	csrMHPMEVENT3 = 0x323 // mhpmevent3..31 = 0x323..0x33f

	csrCYCLE   = 0xc00
	csrTIME    = 0xc01
	csrINSTRET = 0xc02

	csrMVENDORID = 0xf11
	csrMARCHID   = 0xf12
	csrMIMPID    = 0xf13
	csrMHARTID   = 0xf14

	// Esperanto validation extensions, spec.md §6.
	csrFlushAll  = 0x81f
	csrValidate0 = 0x8d0
	csrValidate1 = 0x8d1
)
