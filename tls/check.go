package tls

import (
	"context"
	"fmt"

	"github.com/saiset-co/kodespace/types"
)

// HealthCheck is unhealthy when any served certificate has expired or
// could not be read.
func (cm *CertManager) HealthCheck() types.HealthChecker {
	return func(ctx context.Context) types.HealthCheck {
		if !cm.IsRunning() {
			return types.HealthCheck{Status: types.StatusUnhealthy, Message: types.ErrServerNotRunning.Error()}
		}

		statuses := cm.GetCertificateStatus()

		var valid, expiring, broken int
		details := make(map[string]interface{}, len(statuses))
		for domain, status := range statuses {
			details[domain] = status
			switch status.Status {
			case "valid":
				valid++
			case "expiring_soon":
				expiring++
			default:
				broken++
			}
		}

		check := types.HealthCheck{
			Status:  types.StatusHealthy,
			Message: fmt.Sprintf("%d valid, %d expiring, %d invalid", valid, expiring, broken),
			Details: details,
		}
		if broken > 0 || len(statuses) == 0 {
			check.Status = types.StatusUnhealthy
		}

		return check
	}
}
