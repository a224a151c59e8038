package generator

import (
	"time"
)

// Session 持有一次写作调用的循环状态；只属于一个 Invoke，不共享。
type Session struct {
	Request  WriteRequest
	Article  string
	Feedback string
	History  []IterationRecord
	state    State
}

func newSession(req WriteRequest) *Session {
	return &Session{Request: req, state: StateDrafting}
}

// State 返回当前所处阶段。
func (s *Session) State() State { return s.state }

// Iteration 是下一轮（或当前轮）的序号，从 1 开始。
func (s *Session) Iteration() int { return len(s.History) + 1 }

func (s *Session) drafted(article string) {
	s.Article = article
	s.state = StateScoring
}

// record 追加一轮结果并推进状态。
func (s *Session) record(score float64, feedback string, passes bool, maxIterations int) IterationRecord {
	rec := IterationRecord{
		Iteration: s.Iteration(),
		Article:   s.Article,
		Score:     score,
		Feedback:  feedback,
		Passes:    passes,
		CreatedAt: time.Now(),
	}
	s.History = append(s.History, rec)
	s.Feedback = feedback
	s.state = nextState(passes, len(s.History), maxIterations)
	return rec
}

func nextState(passes bool, done, maxIterations int) State {
	switch {
	case passes:
		return StateAccepted
	case done >= maxIterations:
		return StateExhausted
	default:
		return StateRefining
	}
}

// Best 返回分数最高的一轮；同分取较早的一轮。
func (s *Session) Best() (IterationRecord, bool) {
	return bestAttempt(s.History)
}

func bestAttempt(history []IterationRecord) (IterationRecord, bool) {
	if len(history) == 0 {
		return IterationRecord{}, false
	}
	best := history[0]
	for _, rec := range history[1:] {
		if rec.Score > best.Score {
			best = rec
		}
	}
	return best, true
}
