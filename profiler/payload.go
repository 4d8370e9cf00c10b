package profiler

import (
	"strconv"
)

// extractCommits pulls commits from the two profilingData payload shapes:
//
//	nested: {dataForRoots: [{commitData: [...]}, ...]}
//	flat:   {commitData: [...]}
func extractCommits(payload any) []*Commit {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil
	}

	var commits []*Commit
	if roots, ok := obj["dataForRoots"].([]any); ok {
		for _, root := range roots {
			rootObj, ok := root.(map[string]any)
			if !ok {
				continue
			}
			commits = append(commits, commitsFromList(rootObj["commitData"])...)
		}
		return commits
	}
	return commitsFromList(obj["commitData"])
}

func commitsFromList(v any) []*Commit {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	commits := make([]*Commit, 0, len(list))
	for _, entry := range list {
		if c := parseCommit(entry); c != nil {
			commits = append(commits, c)
		}
	}
	return commits
}

func parseCommit(v any) *Commit {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return &Commit{
		Timestamp:       int64(asFloat(obj["timestamp"])),
		Duration:        asFloat(obj["duration"]),
		ActualDurations: parseDurations(obj["fiberActualDurations"]),
		SelfDurations:   parseDurations(obj["fiberSelfDurations"]),
		Changes:         parseChangeDescriptions(obj["changeDescriptions"]),
	}
}

// parseDurations accepts both wire shapes for duration maps:
// [[id,dur],…] tuples and [id,dur,id,dur,…] interleaved.
func parseDurations(v any) map[uint32]float64 {
	out := make(map[uint32]float64)
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return out
	}

	if _, tuple := list[0].([]any); tuple {
		for _, entry := range list {
			pair, ok := entry.([]any)
			if !ok || len(pair) < 2 {
				continue
			}
			out[uint32(asFloat(pair[0]))] = asFloat(pair[1])
		}
		return out
	}

	for i := 0; i+1 < len(list); i += 2 {
		out[uint32(asFloat(list[i]))] = asFloat(list[i+1])
	}
	return out
}

// parseChangeDescriptions accepts either a map keyed by id or an ordered
// sequence of [id, desc] pairs.
func parseChangeDescriptions(v any) map[uint32]*ChangeDescription {
	out := make(map[uint32]*ChangeDescription)

	switch val := v.(type) {
	case map[string]any:
		for key, desc := range val {
			id, err := strconv.ParseUint(key, 10, 32)
			if err != nil {
				continue
			}
			if cd := parseChangeDescription(desc); cd != nil {
				out[uint32(id)] = cd
			}
		}
	case []any:
		for _, entry := range val {
			pair, ok := entry.([]any)
			if !ok || len(pair) < 2 {
				continue
			}
			if cd := parseChangeDescription(pair[1]); cd != nil {
				out[uint32(asFloat(pair[0]))] = cd
			}
		}
	}
	return out
}

func parseChangeDescription(v any) *ChangeDescription {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	cd := &ChangeDescription{}
	if b, ok := obj["didHooksChange"].(bool); ok {
		cd.DidHooksChange = b
	}
	if b, ok := obj["isFirstMount"].(bool); ok {
		cd.IsFirstMount = b
	}
	cd.Props = asStringList(obj["props"])
	cd.State = asStringList(obj["state"])
	cd.Hooks = asIntList(obj["hooks"])
	return cd
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func asStringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asIntList(v any) []int {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int, 0, len(list))
	for _, e := range list {
		out = append(out, int(asFloat(e)))
	}
	return out
}
