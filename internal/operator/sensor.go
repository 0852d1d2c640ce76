package operator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	defaultPokeInterval = 60 * time.Second
	defaultSensorWait   = 7 * 24 * time.Hour
)

// PokeNotifier observes a sensor's poke loop.
type PokeNotifier interface {
	Poke(taskID string, attempt int, next time.Duration)
	Done(taskID string, met bool)
}

// SensorArgs are the keyword arguments shared by sensors. Durations are in
// seconds.
type SensorArgs struct {
	PokeInterval       float64 `yaml:"poke_interval" validate:"gte=0"`
	Timeout            float64 `yaml:"timeout" validate:"gte=0"`
	ExponentialBackoff bool    `yaml:"exponential_backoff"`
	SoftFail           bool    `yaml:"soft_fail"`
	Mode               string  `yaml:"mode" validate:"omitempty,oneof=poke reschedule"`
}

// Sensor is the poke loop embedded by sensor operators.
type Sensor struct {
	PokeInterval       time.Duration
	Timeout            time.Duration
	ExponentialBackoff bool
	SoftFail           bool
}

// NewSensor decodes the sensor arguments, applying defaults for the ones
// that were not given.
func NewSensor(args Args) (Sensor, error) {
	params := SensorArgs{
		PokeInterval: defaultPokeInterval.Seconds(),
		Timeout:      defaultSensorWait.Seconds(),
	}
	if err := args.Decode(&params); err != nil {
		return Sensor{}, err
	}
	return Sensor{
		PokeInterval:       seconds(params.PokeInterval),
		Timeout:            seconds(params.Timeout),
		ExponentialBackoff: params.ExponentialBackoff,
		SoftFail:           params.SoftFail,
	}, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

var errNotMet = errors.New("condition not met")

// Wait calls poke until it reports true, poke fails, or the timeout elapses.
// The condition is always checked at least once. A timeout returns
// ErrSensorTimeout, additionally wrapped in ErrTaskSkipped when SoftFail is
// set. Cancellation of ctx is returned as ctx.Err().
func (s Sensor) Wait(ctx context.Context, base *BaseOperator, poke func(context.Context) (bool, error)) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	taskID := base.TaskID()
	attempt := 0
	op := func() error {
		attempt++
		met, err := poke(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil {
				return err
			}
			return backoff.Permanent(err)
		}
		if !met {
			return errNotMet
		}
		return nil
	}
	notify := func(_ error, next time.Duration) {
		base.Log.WithFields(map[string]any{"attempt": attempt, "next_poke": next.String()}).Debug("condition not met")
		if base.Notifier != nil {
			base.Notifier.Poke(taskID, attempt, next)
		}
	}

	err := backoff.RetryNotify(op, backoff.WithContext(s.policy(), waitCtx), notify)
	if base.Notifier != nil {
		base.Notifier.Done(taskID, err == nil)
	}

	switch {
	case err == nil:
		base.Log.Infof("condition met after %d poke(s)", attempt)
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, errNotMet) || waitCtx.Err() != nil:
		timeout := fmt.Errorf("%w: task %s after %s", ErrSensorTimeout, taskID, s.Timeout)
		if s.SoftFail {
			return fmt.Errorf("%w: %w", ErrTaskSkipped, timeout)
		}
		return timeout
	default:
		return err
	}
}

func (s Sensor) policy() backoff.BackOff {
	if !s.ExponentialBackoff {
		return backoff.NewConstantBackOff(s.PokeInterval)
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.PokeInterval
	exp.Multiplier = 2
	exp.MaxInterval = s.Timeout
	exp.MaxElapsedTime = 0
	return exp
}
