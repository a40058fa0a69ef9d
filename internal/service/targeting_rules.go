package service

import (
	"fmt"
	"sort"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
)

// eligibleSet is the union of screens reached by a set of groups.
type eligibleSet struct {
	// groupOrder keeps the requested group ids in request order.
	groupOrder   []string
	groupMembers map[string]map[string]struct{}
	screens      map[string]models.Screen
	online       int
	offline      int
}

// warningRule inspects an eligible set and reports at most one warning.
type warningRule func(set *eligibleSet, cfg TargetingServiceConfig) (models.Warning, bool)

// warningRules are evaluated in order; every applicable warning is reported.
var warningRules = []warningRule{
	lowScreenCountRule,
	offlineRule,
	mixedResolutionRule,
	overlapRule,
}

func evaluateWarnings(set *eligibleSet, cfg TargetingServiceConfig) []models.Warning {
	warnings := []models.Warning{}
	for _, rule := range warningRules {
		if w, ok := rule(set, cfg); ok {
			warnings = append(warnings, w)
		}
	}
	return warnings
}

func lowScreenCountRule(set *eligibleSet, cfg TargetingServiceConfig) (models.Warning, bool) {
	count := len(set.screens)
	if count >= cfg.LowScreenFloor {
		return models.Warning{}, false
	}
	return models.Warning{
		Type:    models.WarningLowScreenCount,
		Message: fmt.Sprintf("Only %d eligible screens; campaigns below %d screens are likely to under-deliver.", count, cfg.LowScreenFloor),
		Data: map[string]interface{}{
			"eligible_screen_count": count,
			"minimum":               cfg.LowScreenFloor,
		},
	}, true
}

func offlineRule(set *eligibleSet, cfg TargetingServiceConfig) (models.Warning, bool) {
	total := len(set.screens)
	if total == 0 {
		return models.Warning{}, false
	}
	ratio := float64(set.offline) / float64(total)
	if ratio <= cfg.OfflineRatio {
		return models.Warning{}, false
	}
	return models.Warning{
		Type:    models.WarningOffline,
		Message: fmt.Sprintf("%d of %d eligible screens are offline.", set.offline, total),
		Data: map[string]interface{}{
			"offline_count":         set.offline,
			"eligible_screen_count": total,
			"offline_ratio":         ratio,
			"threshold":             cfg.OfflineRatio,
		},
	}, true
}

func mixedResolutionRule(set *eligibleSet, _ TargetingServiceConfig) (models.Warning, bool) {
	counts := map[string]int{}
	for _, screen := range set.screens {
		if res := screen.Resolution(); res != "" {
			counts[res]++
		}
	}
	if len(counts) <= 1 {
		return models.Warning{}, false
	}
	resolutions := make([]string, 0, len(counts))
	for res := range counts {
		resolutions = append(resolutions, res)
	}
	sort.Strings(resolutions)
	return models.Warning{
		Type:    models.WarningMixedResolution,
		Message: fmt.Sprintf("Eligible screens use %d different resolutions; creatives may not render correctly on all of them.", len(resolutions)),
		Data: map[string]interface{}{
			"resolutions": resolutions,
			"breakdown":   counts,
		},
	}, true
}

func overlapRule(set *eligibleSet, _ TargetingServiceConfig) (models.Warning, bool) {
	nonEmpty := 0
	owners := map[string]int{}
	for _, groupID := range set.groupOrder {
		members := set.groupMembers[groupID]
		if len(members) == 0 {
			continue
		}
		nonEmpty++
		for screenID := range members {
			owners[screenID]++
		}
	}
	if nonEmpty < 2 {
		return models.Warning{}, false
	}

	shared := make([]string, 0)
	for screenID, n := range owners {
		if n > 1 {
			shared = append(shared, screenID)
		}
	}
	if len(shared) == 0 {
		return models.Warning{}, false
	}
	sort.Strings(shared)

	pairs := make([]map[string]interface{}, 0)
	for i := 0; i < len(set.groupOrder); i++ {
		for j := i + 1; j < len(set.groupOrder); j++ {
			a, b := set.groupOrder[i], set.groupOrder[j]
			if n := intersectionSize(set.groupMembers[a], set.groupMembers[b]); n > 0 {
				pairs = append(pairs, map[string]interface{}{"group_ids": []string{a, b}, "shared_count": n})
			}
		}
	}

	return models.Warning{
		Type:    models.WarningOverlap,
		Message: fmt.Sprintf("%d screens are targeted through more than one selected group.", len(shared)),
		Data: map[string]interface{}{
			"overlap_count":     len(shared),
			"shared_screen_ids": shared,
			"group_pairs":       pairs,
		},
	}, true
}

func intersectionSize(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for id := range a {
		if _, ok := b[id]; ok {
			n++
		}
	}
	return n
}
