package engine

import (
	"go.uber.org/zap"

	"alpha-tick-bot-go/internal/models"
)

// Observer receives the result of every completed update. Implementations
// must return quickly; the engine calls them synchronously.
type Observer interface {
	OnEvaluation(ev models.Evaluation)
}

// NopObserver discards evaluations.
type NopObserver struct{}

func (NopObserver) OnEvaluation(models.Evaluation) {}

// LogObserver writes each evaluation to the structured log. Rejections are
// logged at debug so a quiet market does not flood the info log.
type LogObserver struct {
	Logger *zap.SugaredLogger
}

func (o LogObserver) OnEvaluation(ev models.Evaluation) {
	if ev.Action == models.ActionNone {
		o.Logger.Debugf("[%s] %s regime=%s score=%.3f quality=%.1f reason=%s",
			ev.Symbol, ev.Time.Format("2006-01-02 15:04"), ev.Regime, ev.Score, ev.Quality, ev.Reason)
		return
	}
	o.Logger.Infof("[%s] %s %s ticket=%d regime=%s score=%.3f quality=%.1f",
		ev.Symbol, ev.Time.Format("2006-01-02 15:04"), ev.Action, ev.Ticket, ev.Regime, ev.Score, ev.Quality)
}
