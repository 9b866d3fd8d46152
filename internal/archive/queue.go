package archive

import (
	"context"
	"io"
	"time"

	"github.com/scythe504/voting-rooms/internal"
	"github.com/sirupsen/logrus"
)

// Saver is the write side of the archive.
type Saver interface {
	SaveRound(ctx context.Context, result internal.RoundResult) error
}

// Queue hands revealed rounds from the dispatch loop to a background writer.
// Archive never blocks; when the buffer is full the round is dropped and
// logged.
type Queue struct {
	saver        Saver
	pending      chan internal.RoundResult
	writeTimeout time.Duration
	log          *logrus.Entry
}

func NewQueue(saver Saver, size int, log *logrus.Entry) *Queue {
	if size <= 0 {
		size = 64
	}
	if log == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		log = logrus.NewEntry(silent)
	}
	return &Queue{
		saver:        saver,
		pending:      make(chan internal.RoundResult, size),
		writeTimeout: 5 * time.Second,
		log:          log.WithField("component", "archive-queue"),
	}
}

func (q *Queue) Archive(result internal.RoundResult) {
	select {
	case q.pending <- result:
	default:
		q.log.WithFields(logrus.Fields{"room": result.RoomCode, "round": result.Round}).
			Warn("[Archive] queue full, dropping round")
	}
}

// Run writes queued rounds until ctx is cancelled, then flushes what is
// already buffered.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case result := <-q.pending:
			q.save(context.Background(), result)
		case <-ctx.Done():
			for {
				select {
				case result := <-q.pending:
					q.save(context.Background(), result)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) save(parent context.Context, result internal.RoundResult) {
	ctx, cancel := context.WithTimeout(parent, q.writeTimeout)
	defer cancel()

	log := q.log.WithFields(logrus.Fields{"room": result.RoomCode, "round": result.Round})
	if err := q.saver.SaveRound(ctx, result); err != nil {
		log.Errorf("[save] failed to archive round: %v", err)
		return
	}
	log.Debugf("[save] archived %d votes", len(result.Votes))
}
