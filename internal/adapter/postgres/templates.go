package postgres

import (
	"context"
	"fmt"

	"github.com/couchcryptid/reservoir-risk-service/internal/domain"
	"github.com/couchcryptid/reservoir-risk-service/internal/recommend"
)

// Template loads the active rules of a level whose conditions admit pct and trend, then
// picks per kind the same way the file-backed rule set does.
func (r *Repository) Template(ctx context.Context, level domain.RiskLevel, pct float64, trend domain.Trend) (domain.Template, bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT kind, body, min_pct, max_pct, COALESCE(trend, ''), priority
		FROM recommendation_template
		WHERE risk_level = $1
		  AND active
		  AND (min_pct IS NULL OR $2 >= min_pct)
		  AND (max_pct IS NULL OR $2 <= max_pct)
		  AND (trend IS NULL OR trend = $3)
		ORDER BY priority
	`, string(level), pct, string(trend))
	if err != nil {
		return domain.Template{}, false, fmt.Errorf("postgres: query templates: %w", err)
	}
	defer rows.Close()

	var rules recommend.RuleSet
	for rows.Next() {
		rule := recommend.TemplateRule{Level: level}
		var kind, trendCond string
		if err := rows.Scan(&kind, &rule.Text, &rule.MinPct, &rule.MaxPct, &trendCond, &rule.Priority); err != nil {
			return domain.Template{}, false, fmt.Errorf("postgres: scan template row: %w", err)
		}
		rule.Kind = recommend.TemplateKind(kind)
		rule.Trend = domain.Trend(trendCond)
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return domain.Template{}, false, fmt.Errorf("postgres: query templates: %w", err)
	}
	return rules.Template(ctx, level, pct, trend)
}
