package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	emptyTagValue    = "EMPTY"
	aggregatedSuffix = ".Aggregated"
	parentPrefix     = "parent."
)

// NamedResult is one child of an aggregation.
type NamedResult struct {
	Name   string
	Result CheckResult
}

// Aggregate combines children into one result: Success iff the share of
// successful children reaches thresholdPercent. total may exceed len(results)
// when some children never produced a result.
func Aggregate(label string, total, thresholdPercent int, results []NamedResult, parentTags Tags) CheckResult {
	successCount := 0
	for _, r := range results {
		if r.Result.Outcome == Success {
			successCount++
		}
	}

	percent := 100.0
	if total > 0 {
		percent = float64(successCount) * 100.0 / float64(total)
	}

	tags := MergeTags(results)
	for k, v := range parentTags {
		if _, ok := tags[k]; ok {
			tags[parentPrefix+k] = v
			continue
		}
		tags[k] = v
	}

	details := make([]string, 0, len(results))
	for _, r := range results {
		d := r.Name + ": " + r.Result.Outcome.String()
		if r.Result.Description != "" {
			d += " (" + r.Result.Description + ")"
		}
		details = append(details, d)
	}

	p := strconv.FormatFloat(percent, 'f', -1, 64)
	if percent < float64(thresholdPercent) {
		return NewResult(Failure, fmt.Sprintf(
			"%s: Less than %d%% passed (Passed %d out of %d: %s%%). Check Failed. Details: %s",
			label, thresholdPercent, successCount, total, p, strings.Join(details, ", ")), tags)
	}
	return NewResult(Success, fmt.Sprintf(
		"%s: More than %d%% passed (Passed %d out of %d: %s%%). Check Succeeded. Details: %s",
		label, thresholdPercent, successCount, total, p, strings.Join(details, ", ")), tags)
}

// MergeTags merges the children's tags. A key whose values all agree keeps
// that value; otherwise the merged value goes under "<key>.Aggregated".
func MergeTags(results []NamedResult) Tags {
	values := map[string][]string{}
	var order []string
	for _, r := range results {
		for k, v := range r.Result.Tags {
			if _, ok := values[k]; !ok {
				order = append(order, k)
			}
			values[k] = append(values[k], v)
		}
	}

	out := make(Tags, len(values))
	for _, k := range order {
		vs := values[k]
		if distinct(vs) == 1 {
			if vs[0] == "" {
				out[k] = emptyTagValue
			} else {
				out[k] = vs[0]
			}
			continue
		}
		out[k+aggregatedSuffix] = mergeValues(vs)
	}
	return out
}

func distinct(vs []string) int {
	seen := make(map[string]struct{}, len(vs))
	for _, v := range vs {
		seen[v] = struct{}{}
	}
	return len(seen)
}

func mergeValues(vs []string) string {
	var nonEmpty []string
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}

	if len(nonEmpty) > 0 {
		if avg, ok := averageNumbers(nonEmpty); ok {
			return strconv.FormatFloat(math.Round(avg*100)/100, 'f', -1, 64)
		}
		if avg, ok := averageDurations(nonEmpty); ok {
			return avg.String()
		}
	}

	seen := map[string]struct{}{}
	list := make([]string, 0, len(vs))
	for _, v := range vs {
		if v == "" {
			v = emptyTagValue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		list = append(list, v)
	}
	sort.Strings(list)
	return strings.Join(list, ", ")
}

func averageNumbers(vs []string) (float64, bool) {
	sum := 0.0
	for _, v := range vs {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		sum += f
	}
	return sum / float64(len(vs)), true
}

func averageDurations(vs []string) (time.Duration, bool) {
	var sum time.Duration
	for _, v := range vs {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		sum += d
	}
	return sum / time.Duration(len(vs)), true
}
