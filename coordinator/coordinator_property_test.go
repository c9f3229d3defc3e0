package coordinator_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"goa.design/bridge/broadcast"
	"goa.design/bridge/coordinator"
	"goa.design/bridge/eventlog"
	"goa.design/bridge/eventlog/inmem"
	"goa.design/bridge/queue"
	"goa.design/bridge/session"
	"goa.design/bridge/telemetry"
)

// turnScript is one generated (SubmitRequest, SubmitResponse) schedule for a
// single session: a set of turn ids submitted in order, each optionally
// answered. Grounded on the property-test shape in the teacher's
// runtime/registry/manager_property_test.go (generated structs driving a
// Property over repeated operations on one subject-under-test).
type turnScript struct {
	turns    []string
	answered []bool
}

func genTurnScript() gopter.Gen {
	return gen.SliceOfN(8, gen.Bool()).Map(func(answers []bool) turnScript {
		turns := make([]string, len(answers))
		for i := range turns {
			turns[i] = fmt.Sprintf("turn-%d", i)
		}
		return turnScript{turns: turns, answered: answers}
	})
}

// TestSubscriberObservesDenseStrictlyIncreasingSequence verifies spec.md
// §8's quantified invariant: for every session and every subscriber, the
// sequence observed is a strictly increasing, dense subsequence of the
// session's log starting at resume_from_sequence+1, and every response
// observed for turn t was preceded by a request for t.
func TestSubscriberObservesDenseStrictlyIncreasingSequence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("events arrive dense, strictly increasing, request before response, at most one response per turn", prop.ForAll(
		func(script turnScript) bool {
			ctx := context.Background()
			store := inmem.New()
			srv := coordinator.New(session.New(store), store, queue.New(store), broadcast.NewHub(store, 256, telemetry.Noop()), telemetry.Noop())

			sess, err := srv.CreateSession(ctx, "prop")
			if err != nil {
				return false
			}
			sub, err := srv.Subscribe(ctx, sess.ID, 0, 0)
			if err != nil {
				return false
			}
			defer sub.Cancel()

			for i, turn := range script.turns {
				if _, err := srv.SubmitRequest(ctx, sess.ID, turn, "orch", []byte(turn)); err != nil {
					return false
				}
				if script.answered[i] {
					if _, err := srv.SubmitResponse(ctx, sess.ID, turn, []byte(turn+"-resp")); err != nil {
						return false
					}
				}
			}

			requested := make(map[string]bool)
			responded := make(map[string]bool)
			var lastSeq uint64
			count := 0
			for {
				select {
				case d, ok := <-sub.Deliveries:
					if !ok {
						return count == expectedEventCount(script)
					}
					if d.Err != nil {
						return false
					}
					if d.Event.Sequence != lastSeq+1 {
						return false // not dense / not strictly increasing
					}
					lastSeq = d.Event.Sequence
					switch d.Event.PayloadKind {
					case eventlog.Request:
						if requested[d.Event.TurnID] {
							return false
						}
						requested[d.Event.TurnID] = true
					case eventlog.Response:
						if !requested[d.Event.TurnID] {
							return false // response before request
						}
						if responded[d.Event.TurnID] {
							return false // more than one response for this turn
						}
						responded[d.Event.TurnID] = true
					}
					count++
					if count == expectedEventCount(script) {
						return true
					}
				case <-time.After(2 * time.Second):
					return false
				}
			}
		},
		genTurnScript(),
	))

	properties.TestingRun(t)
}

func expectedEventCount(script turnScript) int {
	n := len(script.turns)
	for _, answered := range script.answered {
		if answered {
			n++
		}
	}
	return n
}
