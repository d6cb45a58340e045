package channels

import (
	"context"
	"slices"
	"strings"

	"github.com/jdziat/device-schedules/pkg/core"
)

// FunctionNames maps a schedulable channel function to its display name.
// Functions missing from the map cannot be scheduled.
type FunctionNames map[int]string

// Eligible returns the channels whose function is schedulable, in input order.
func Eligible(channels []core.Channel, names FunctionNames) []core.Channel {
	out := make([]core.Channel, 0, len(channels))
	for _, ch := range channels {
		if _, ok := names[ch.Function]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Compare orders two channels for presentation.
func Compare(a, b core.Channel, names FunctionNames) int {
	if a.Function != b.Function {
		return strings.Compare(Slugify(names[a.Function]), Slugify(names[b.Function]))
	}
	switch {
	case a.Caption == "" && b.Caption == "":
		return 0
	case a.Caption == "":
		return 1
	case b.Caption == "":
		return -1
	}
	return strings.Compare(Slugify(a.Caption), Slugify(b.Caption))
}

// Sort orders channels in place with Compare. Equal channels keep their order.
func Sort(channels []core.Channel, names FunctionNames) {
	slices.SortStableFunc(channels, func(a, b core.Channel) int {
		return Compare(a, b, names)
	})
}

// Schedulable loads the user's channels and returns the schedulable ones in
// presentation order.
func Schedulable(ctx context.Context, store core.ScheduleStore, userID string, names FunctionNames) ([]core.Channel, error) {
	all, err := store.GetChannelsByUser(ctx, userID)
	if err != nil {
		return nil, core.StoreFailure("get channels", err)
	}
	out := Eligible(all, names)
	Sort(out, names)
	return out, nil
}
