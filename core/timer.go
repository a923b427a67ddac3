package core

// TimerFreq is the default system tick rate used by the host simulation
const (
	TimerFreq = 12000000
)

var (
	bootTime uint64

	// clockSource refreshes the tick counter from hardware when set
	clockSource func() uint32
)

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// SetClockSource registers a hardware counter read before each dispatch
func SetClockSource(src func() uint32) {
	clockSource = src
}

// GetUptime returns ticks elapsed since TimerInit
func GetUptime() uint64 {
	return uint64(GetTime()) - bootTime
}

// TimerFromUS converts microseconds to timer ticks at freq
func TimerFromUS(us, freq uint32) uint32 {
	return uint32(uint64(us) * uint64(freq) / 1000000)
}

// TimerToUS converts timer ticks at freq to microseconds
func TimerToUS(ticks, freq uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / uint64(freq))
}

// TimerInit initializes the system timer
func TimerInit() {
	if clockSource != nil {
		SetTime(clockSource())
	}
	bootTime = uint64(GetTime())
}

// ProcessTimers processes scheduled timers
func ProcessTimers() {
	if clockSource != nil {
		SetTime(clockSource())
	}
	TimerDispatch()
}

// Idle waits for the next timer event.
// On the host it advances the simulated clock instead of sleeping.
func Idle() {
	idle()
}
