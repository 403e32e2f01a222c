package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

// InjectionCheckResult describes a parameter value that looks like SQL injection.
type InjectionCheckResult struct {
	ParamName   string
	Position    int
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckParameterForInjection runs libinjection over a string value. Values of
// other types cannot carry injected SQL and are never reported.
func CheckParameterForInjection(name string, value any) *InjectionCheckResult {
	s, ok := value.(string)
	if !ok {
		return nil
	}
	if isSQLi, fingerprint := libinjection.IsSQLi(s); isSQLi {
		return &InjectionCheckResult{ParamName: name, Fingerprint: string(fingerprint)}
	}
	return nil
}

// CheckBoundParameters checks every bound parameter and returns the hits in
// placeholder order.
func CheckBoundParameters(params []models.BoundParameter) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for _, p := range params {
		if r := CheckParameterForInjection(p.Name, p.Value); r != nil {
			r.Position = p.Position
			results = append(results, r)
		}
	}
	return results
}
