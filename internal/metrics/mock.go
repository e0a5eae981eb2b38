package metrics

import "sync"

var _ Metrics = (*Mock)(nil)

// Mock is a mock implementation of the Metrics interface for testing.
// It is safe for concurrent use.
type Mock struct {
	mu                 sync.Mutex
	movesApplied       int
	turnsPassed        int
	matchesFinished    map[string]int
	challengesResolved map[string]int
	rematchesResolved  map[string]int
	seriesFinished     int
	skipped            map[string]int
	storeErrors        map[string]int
	activeSessions     int
	writeDurations     []float64
	startupTime        float64
}

// NewMock creates a new mock instance.
func NewMock() *Mock {
	return &Mock{
		matchesFinished:    make(map[string]int),
		challengesResolved: make(map[string]int),
		rematchesResolved:  make(map[string]int),
		skipped:            make(map[string]int),
		storeErrors:        make(map[string]int),
		writeDurations:     make([]float64, 0),
	}
}

func (m *Mock) IncMovesApplied() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movesApplied++
}

func (m *Mock) IncTurnsPassed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnsPassed++
}

func (m *Mock) IncMatchesFinished(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchesFinished[outcome]++
}

func (m *Mock) IncChallengesResolved(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.challengesResolved[status]++
}

func (m *Mock) IncRematchesResolved(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rematchesResolved[outcome]++
}

func (m *Mock) IncSeriesFinished() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seriesFinished++
}

func (m *Mock) IncGuardedWritesSkipped(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped[operation]++
}

func (m *Mock) IncStoreErrors(operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeErrors[operation]++
}

func (m *Mock) SetActiveSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeSessions = n
}

func (m *Mock) ObserveWriteDuration(duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeDurations = append(m.writeDurations, duration)
}

func (m *Mock) SetStartupTime(duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startupTime = duration
}

// MovesApplied returns the number of times IncMovesApplied was called.
func (m *Mock) MovesApplied() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.movesApplied
}

// TurnsPassed returns the number of times IncTurnsPassed was called.
func (m *Mock) TurnsPassed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turnsPassed
}

// MatchesFinished returns the finished count for outcome.
func (m *Mock) MatchesFinished(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchesFinished[outcome]
}

// ChallengesResolved returns the resolved count for status.
func (m *Mock) ChallengesResolved(status string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.challengesResolved[status]
}

// RematchesResolved returns the resolved count for outcome.
func (m *Mock) RematchesResolved(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rematchesResolved[outcome]
}

// SeriesFinished returns the number of times IncSeriesFinished was called.
func (m *Mock) SeriesFinished() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seriesFinished
}

// GuardedWritesSkipped returns the skip count for operation.
func (m *Mock) GuardedWritesSkipped(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skipped[operation]
}

// StoreErrors returns the error count for operation.
func (m *Mock) StoreErrors(operation string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.storeErrors[operation]
}

// ActiveSessions returns the last value passed to SetActiveSessions.
func (m *Mock) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeSessions
}
