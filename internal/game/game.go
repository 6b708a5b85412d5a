// Package game holds the per-room game views. Each view is an actor: one
// goroutine owns the state, channel handlers and public methods post to it.
package game

import (
	"encoding/json"
	"errors"

	"github.com/ALCHACAS2/Dots-Boxes/internal/channel"
	"github.com/ALCHACAS2/Dots-Boxes/internal/voice"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("game view closed")
var ErrOutOfBounds = errors.New("edge out of bounds")
var ErrGameOver = errors.New("game has ended")

// subscribe decodes event payloads into T before handing them to post.
// Malformed payloads are logged and dropped.
func subscribe[T any](ch channel.Channel, log *zap.Logger, event string, post func(T)) func() {
	return ch.On(event, func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			log.Warn("dropping malformed event", zap.String("event", event), zap.Error(err))
			return
		}
		post(v)
	})
}

// release unsubscribes and closes the attached voice session, if any.
func release(offs []func(), vs *voice.Session) error {
	for _, off := range offs {
		off()
	}
	var err error
	if vs != nil {
		err = multierr.Append(err, vs.Close())
	}
	return err
}

func namedLogger(l *zap.Logger, name, room, self string) *zap.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return l.Named(name).With(zap.String("room", room), zap.String("self", self))
}
