package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/miradorstack/secops-investigator/internal/models"
)

// ipShape deliberately skips octet range checks: 999.999.999.999 is still an asset.
var ipShape = regexp.MustCompile(`\d{1,3}(?:\.\d{1,3}){3}`)

var assetPrefixes = []struct {
	prefix    string
	assetType models.AssetType
}{
	{"10.1.1.", models.AssetWorkstation},
	{"10.1.2.", models.AssetServer},
	{"10.1.3.", models.AssetNetworkDevice},
}

// IdentifyAssets derives the affected-asset inventory from completed task data. The list is
// rebuilt from scratch on every call and ordered by first appearance in task order.
func IdentifyAssets(tasks []*models.AgentTask, correlations []models.CorrelationResult) []models.Asset {
	var ips []string
	seen := make(map[string]struct{})
	var serialized []string

	for _, task := range tasks {
		if !task.Completed() {
			continue
		}
		for _, event := range task.Result.Data {
			serialized = append(serialized, event.Serialize())
			for _, value := range sortedFieldTexts(event) {
				for _, ip := range ipShape.FindAllString(value, -1) {
					if _, ok := seen[ip]; ok {
						continue
					}
					seen[ip] = struct{}{}
					ips = append(ips, ip)
				}
			}
		}
	}

	correlated := make([]string, len(correlations))
	for i, correlation := range correlations {
		correlated[i] = correlation.Serialize()
	}

	assets := make([]models.Asset, 0, len(ips))
	for _, ip := range ips {
		assetType := classifyAddress(ip)
		status := models.AssetHealthy
		for _, text := range correlated {
			if strings.Contains(text, ip) {
				status = models.AssetDegraded
				break
			}
		}
		references := 0
		for _, text := range serialized {
			if strings.Contains(text, ip) {
				references++
			}
		}
		assets = append(assets, models.Asset{
			ID:        ip,
			Type:      assetType,
			Name:      fmt.Sprintf("%s-%s", assetType, ip),
			IPAddress: ip,
			Status:    status,
			Impact:    impactFor(references),
		})
	}
	return assets
}

func classifyAddress(ip string) models.AssetType {
	for _, p := range assetPrefixes {
		if strings.HasPrefix(ip, p.prefix) {
			return p.assetType
		}
	}
	return models.AssetService
}

func impactFor(references int) models.ImpactLevel {
	switch {
	case references > 10:
		return models.ImpactHigh
	case references > 5:
		return models.ImpactMedium
	case references > 0:
		return models.ImpactLow
	default:
		return models.ImpactNone
	}
}

func sortedFieldTexts(event models.Event) []string {
	names := make([]string, 0, len(event.Fields))
	for name := range event.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	values := make([]string, 0, len(names))
	for _, name := range names {
		values = append(values, event.Fields[name].Text())
	}
	return values
}
