package cpu

// Esperanto validation CSRs. The encoding is grounded verbatim on
// _examples/original_source/validation_events.h: CMD_OFFSET=56 splits the
// 64-bit payload into an 8-bit command tag and a 56-bit value, and
// VALIDATION_CMD_LINUX/BENCH/EXIT_CODE are CMD_PREFIX(0x80)+1..3.
const (
	validationCmdOffset = 56
	validationCmdPrefix = 0x80

	validationCmdLinux    = validationCmdPrefix + 1
	validationCmdBench    = validationCmdPrefix + 2
	validationCmdExitCode = validationCmdPrefix + 3

	linuxCmdBootDone  = 1
	linuxCmdTerminate = 2

	benchCmdStart = 1
	benchCmdEnd   = 2
)

// Markers recognized on CSR 0x8D0, in bits [31:12] (spec.md §4.3).
const (
	marker0D0Begin = 0xDEAD0
	marker0D0Pass  = 0x1FEED
	marker0D0Fail  = 0x50BAD
)

// writeValidate0 implements CSR 0x8D0: a begin/pass/fail marker. Pass and
// fail both request termination; begin is purely informational.
func (s *State) writeValidate0(v uint64) {
	switch (v >> 12) & 0xfffff {
	case marker0D0Begin:
		// informational only
	case marker0D0Pass, marker0D0Fail:
		s.TerminateSimulation = true
	}
}

// writeValidate1 implements CSR 0x8D1 per spec.md §4.9: values that fit in
// 8 bits are console bytes; otherwise the high byte is a command tag and
// the low 56 bits are its payload. A (tag,payload) pair that names the
// configured terminating event requests simulation shutdown.
func (s *State) writeValidate1(v uint64) {
	if v < 0x100 {
		if s.ConsoleOut != nil {
			s.ConsoleOut.Write([]byte{byte(v)})
		}
		return
	}

	tag := v >> validationCmdOffset
	payload := v & ((uint64(1) << validationCmdOffset) - 1)

	var event TerminatingEvent
	switch tag {
	case validationCmdLinux:
		switch payload {
		case linuxCmdBootDone:
			event = EventLinuxBoot
		case linuxCmdTerminate:
			event = EventLinuxTerminate
		}
	case validationCmdBench:
		switch payload {
		case benchCmdStart:
			event = EventBenchmarkStart
		case benchCmdEnd:
			event = EventBenchmarkEnd
		}
	case validationCmdExitCode:
		s.ExitCode = int32(payload)
		s.TerminateSimulation = true
		return
	}

	if event == "" || event != s.TerminatingEvent {
		return
	}
	s.TerminateSimulation = true
	if s.terminateLog != nil {
		s.terminateLog(s.InsnCounter, event)
	}
}
