// Package wait polls conditions of the system under test, turning an
// exhausted time budget into a ProdError tagged "<action>_timeout".
package wait

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"reflect"
	"time"

	k8swait "k8s.io/apimachinery/pkg/util/wait"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/openstack-archive/fuel-qa-sub001/common/failure"
)

var log = logf.Log.WithName("wait")

// State of a single poll.
type State int

const (
	NotReady State = iota
	Ready
	Fatal
)

func (s State) String() string {
	switch s {
	case NotReady:
		return "NotReady"
	case Ready:
		return "Ready"
	case Fatal:
		return "Fatal"
	default:
		return "Unknown"
	}
}

// Outcome is the result of one probe of a condition.
type Outcome struct {
	State State
	// Value is returned to the caller of Until when State is Ready.
	Value interface{}
	// Err is the reason for NotReady and the error returned for Fatal.
	Err error
}

func ReadyWith(value interface{}) Outcome {
	return Outcome{State: Ready, Value: value}
}

func NotReadyBecause(reason error) Outcome {
	return Outcome{State: NotReady, Err: reason}
}

func FatalError(err error) Outcome {
	return Outcome{State: Fatal, Err: err}
}

// Probe evaluates a condition once.
type Probe func() Outcome

// Options of a wait. Interval and Timeout must be positive.
type Options struct {
	Action     string
	Interval   time.Duration
	Timeout    time.Duration
	TimeoutMsg string
}

func (o Options) timeoutError() error {
	msg := o.TimeoutMsg
	if msg == "" {
		msg = fmt.Sprintf("waiting for %s timed out after %v", o.Action, o.Timeout)
	}
	return failure.NewProdError(o.Action+"_timeout", msg)
}

// Until probes immediately and then every Interval until the probe is Ready,
// reports Fatal, or Timeout elapses. A Fatal error is returned as is,
// an elapsed Timeout always yields a ProdError.
func Until(probe Probe, opts Options) (interface{}, error) {
	if opts.Interval <= 0 || opts.Timeout <= 0 {
		return nil, failure.NewInfraError("wait_params",
			fmt.Sprintf("%s: interval %v and timeout %v must be positive", opts.Action, opts.Interval, opts.Timeout))
	}

	var value interface{}
	var reason error
	attempts := 0
	err := k8swait.PollImmediate(opts.Interval, opts.Timeout, func() (bool, error) {
		attempts++
		outcome := probe()
		switch outcome.State {
		case Ready:
			value = outcome.Value
			return true, nil
		case Fatal:
			if outcome.Err == nil {
				return false, fmt.Errorf("%s: fatal outcome without an error", opts.Action)
			}
			return false, outcome.Err
		default:
			reason = outcome.Err
			return false, nil
		}
	})
	if err == k8swait.ErrWaitTimeout {
		log.Info("Timed out", "action", opts.Action, "interval", opts.Interval,
			"timeout", opts.Timeout, "attempts", attempts, "lastReason", fmt.Sprintf("%v", reason))
		return nil, opts.timeoutError()
	}
	if err != nil {
		log.Info("Fatal error while waiting", "action", opts.Action, "attempts", attempts, "error", err)
		return nil, err
	}
	return value, nil
}

// Prod polls a boolean condition. A true result ends the wait and is
// returned, an error from cond is fatal and returned unwrapped, and an
// exhausted timeout is reported as ProdError "<action>_timeout" carrying
// timeoutMsg.
func Prod(cond func() (bool, error), action string, interval, timeout time.Duration, timeoutMsg string) (bool, error) {
	v, err := Until(func() Outcome {
		ok, err := cond()
		if err != nil {
			return FatalError(err)
		}
		if ok {
			return ReadyWith(true)
		}
		return NotReadyBecause(nil)
	}, Options{Action: action, Interval: interval, Timeout: timeout, TimeoutMsg: timeoutMsg})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Classifier tells whether an error means "not ready yet".
type Classifier func(error) bool

// ProdExpecting polls fn until it returns without error. Errors accepted by
// expected are swallowed and polling continues; any other error is
// returned unwrapped straight away. A nil classifier expects nothing.
func ProdExpecting(fn func() (interface{}, error), expected Classifier, action string, interval, timeout time.Duration, timeoutMsg string) (interface{}, error) {
	return Until(func() Outcome {
		value, err := fn()
		if err == nil {
			return ReadyWith(value)
		}
		if expected != nil && expected(err) {
			return NotReadyBecause(err)
		}
		return FatalError(err)
	}, Options{Action: action, Interval: interval, Timeout: timeout, TimeoutMsg: timeoutMsg})
}

// ErrorIs expects errors matching any of targets through errors.Is.
func ErrorIs(targets ...error) Classifier {
	return func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// ErrorAs expects errors having the dynamic type of sample somewhere in
// their chain, e.g. ErrorAs(&net.OpError{}).
func ErrorAs(sample error) Classifier {
	typ := reflect.TypeOf(sample)
	return func(err error) bool {
		if typ == nil {
			return false
		}
		return errors.As(err, reflect.New(typ).Interface())
	}
}

// AnyError expects every error.
func AnyError(error) bool {
	return true
}

// NetworkError expects dial, connection and transport errors, the errors seen
// while a service is restarting.
func NetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Or combines classifiers.
func Or(classifiers ...Classifier) Classifier {
	return func(err error) bool {
		for _, c := range classifiers {
			if c != nil && c(err) {
				return true
			}
		}
		return false
	}
}
