package middleware

import tele "gopkg.in/telebot.v4"

// OperatorSet holds the user IDs allowed to run operator-only handlers.
type OperatorSet map[int64]struct{}

// NewOperatorSet builds an OperatorSet from a list of user IDs.
func NewOperatorSet(ids []int64) OperatorSet {
	set := make(OperatorSet, len(ids))
	for _, id := range ids {
		if id != 0 {
			set[id] = struct{}{}
		}
	}
	return set
}

// Contains reports whether the given user ID belongs to the set.
func (s OperatorSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// OperatorOptions defines how operator-only checks should behave.
type OperatorOptions struct {
	Operators OperatorSet
	OnReject  tele.HandlerFunc
}

// OperatorOnlyMiddleware ensures that only operators can invoke downstream handlers.
// An empty set rejects everyone, so operator commands stay inert when unconfigured.
func OperatorOnlyMiddleware(opts OperatorOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if !opts.Operators.Contains(c.Sender().ID) {
				if opts.OnReject != nil {
					return opts.OnReject(c)
				}
				return nil
			}
			return next(c)
		}
	}
}
