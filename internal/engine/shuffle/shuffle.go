// Package shuffle computes new total orders for a playlist's entries under
// one of three fairness policies.
package shuffle

import (
	"math/rand"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/ayase-lab/karabox/internal/domain/playlist"
)

// ErrUnknownPolicy is returned for an unrecognized policy name.
var ErrUnknownPolicy = errors.New("unknown shuffle policy")

// Policy selects the reordering strategy.
type Policy string

const (
	// PolicyNormal is a uniform random permutation.
	PolicyNormal Policy = "normal"
	// PolicySmart interleaves requesters round-robin so no single
	// requester's songs cluster together.
	PolicySmart Policy = "smart"
	// PolicyBalance orders by descending upvote count, ties broken by the
	// original order.
	PolicyBalance Policy = "balance"
	// PolicyUpvotes is an alias for PolicyBalance. Auto-sort after each
	// vote runs under this name.
	PolicyUpvotes Policy = "upvotes"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyNormal, PolicySmart, PolicyBalance, PolicyUpvotes:
		return Policy(s), nil
	default:
		return "", errors.Wrapf(ErrUnknownPolicy, "policy=%s", s)
	}
}

// Order returns the playlist's entry IDs in the new total order. Entries up
// to and including the currently playing one keep their slots; only the tail
// behind the playing entry is reordered. Entry set membership never changes.
func Order(entries []playlist.Entry, p Policy, rng *rand.Rand) ([]string, error) {
	head, tail := splitAtPlaying(entries)

	var reordered []playlist.Entry
	switch p {
	case PolicyNormal:
		reordered = normal(tail, rng)
	case PolicySmart:
		reordered = smart(tail, rng)
	case PolicyBalance, PolicyUpvotes:
		reordered = byUpvotes(tail)
	default:
		return nil, errors.Wrapf(ErrUnknownPolicy, "policy=%s", p)
	}

	result := make([]string, 0, len(entries))
	for _, e := range head {
		result = append(result, e.ID)
	}
	for _, e := range reordered {
		result = append(result, e.ID)
	}
	return result, nil
}

// splitAtPlaying keeps everything up to the playing entry fixed. With no
// playing entry the whole list is fair game.
func splitAtPlaying(entries []playlist.Entry) (head, tail []playlist.Entry) {
	playingIdx := -1
	for i, e := range entries {
		if e.Playing {
			playingIdx = i
			break
		}
	}
	if playingIdx < 0 {
		return nil, append([]playlist.Entry(nil), entries...)
	}
	head = append(head, entries[:playingIdx+1]...)
	tail = append(tail, entries[playingIdx+1:]...)
	return head, tail
}

func normal(entries []playlist.Entry, rng *rand.Rand) []playlist.Entry {
	result := append([]playlist.Entry(nil), entries...)
	rng.Shuffle(len(result), func(i, j int) {
		result[i], result[j] = result[j], result[i]
	})
	return result
}

// smart groups entries by requester and drains one entry per requester per
// round, visiting requesters in random order each round.
func smart(entries []playlist.Entry, rng *rand.Rand) []playlist.Entry {
	byRequester := make(map[string][]playlist.Entry)
	var requesters []string
	for _, e := range entries {
		if _, ok := byRequester[e.AddedBy]; !ok {
			requesters = append(requesters, e.AddedBy)
		}
		byRequester[e.AddedBy] = append(byRequester[e.AddedBy], e)
	}

	result := make([]playlist.Entry, 0, len(entries))
	for len(result) < len(entries) {
		round := make([]string, 0, len(requesters))
		for _, r := range requesters {
			if len(byRequester[r]) > 0 {
				round = append(round, r)
			}
		}
		rng.Shuffle(len(round), func(i, j int) {
			round[i], round[j] = round[j], round[i]
		})
		for _, r := range round {
			result = append(result, byRequester[r][0])
			byRequester[r] = byRequester[r][1:]
		}
	}
	return result
}

func byUpvotes(entries []playlist.Entry) []playlist.Entry {
	result := append([]playlist.Entry(nil), entries...)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpvoteCount > result[j].UpvoteCount
	})
	return result
}
