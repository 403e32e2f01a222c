package extract

import (
	"slices"
	"strings"

	"github.com/ekaya-inc/ekaya-nlq/pkg/models"
)

type keyword struct {
	phrase     []string
	typ        models.EntityType
	literal    string
	confidence float64
}

func kw(phrase string, typ models.EntityType, literal string) keyword {
	return keyword{phrase: strings.Fields(phrase), typ: typ, literal: literal, confidence: 1.0}
}

// keywords is ordered longest phrase first so the matcher can stop at the
// first hit for a position.
var keywords = sortedKeywords([]keyword{
	// comparisons
	kw("greater than or equal to", models.EntityOperator, models.OpGreaterEqual),
	kw("less than or equal to", models.EntityOperator, models.OpLessEqual),
	kw("greater than", models.EntityOperator, models.OpGreater),
	kw("more than", models.EntityOperator, models.OpGreater),
	kw("larger than", models.EntityOperator, models.OpGreater),
	kw("higher than", models.EntityOperator, models.OpGreater),
	kw("less than", models.EntityOperator, models.OpLess),
	kw("fewer than", models.EntityOperator, models.OpLess),
	kw("smaller than", models.EntityOperator, models.OpLess),
	kw("lower than", models.EntityOperator, models.OpLess),
	kw("at least", models.EntityOperator, models.OpGreaterEqual),
	kw("at most", models.EntityOperator, models.OpLessEqual),
	kw("not equal to", models.EntityOperator, models.OpNotEqual),
	kw("is not", models.EntityOperator, models.OpNotEqual),
	kw("different from", models.EntityOperator, models.OpNotEqual),
	kw("unequal", models.EntityOperator, models.OpNotEqual),
	kw("equal to", models.EntityOperator, models.OpEqual),
	kw("equals", models.EntityOperator, models.OpEqual),
	kw("is", models.EntityOperator, models.OpEqual),
	kw("above", models.EntityOperator, models.OpGreater),
	kw("over", models.EntityOperator, models.OpGreater),
	kw("after", models.EntityOperator, models.OpGreater),
	kw("below", models.EntityOperator, models.OpLess),
	kw("under", models.EntityOperator, models.OpLess),
	kw("before", models.EntityOperator, models.OpLess),
	kw("like", models.EntityOperator, models.OpLike),
	kw("contains", models.EntityOperator, models.OpLike),
	kw("containing", models.EntityOperator, models.OpLike),

	// row limits
	kw("top", models.EntityOperator, models.OpLimit),
	kw("first", models.EntityOperator, models.OpLimit),
	kw("limit", models.EntityOperator, models.OpLimit),

	// connectives
	kw("and", models.EntityOperator, models.OpAnd),
	kw("or", models.EntityOperator, models.OpOr),

	// aggregates
	kw("number", models.EntityAggregate, "COUNT"),
	kw("how many", models.EntityAggregate, "COUNT"),
	kw("count", models.EntityAggregate, "COUNT"),
	kw("sum", models.EntityAggregate, "SUM"),
	kw("total", models.EntityAggregate, "SUM"),
	kw("average", models.EntityAggregate, "AVG"),
	kw("avg", models.EntityAggregate, "AVG"),
	kw("mean", models.EntityAggregate, "AVG"),
	kw("maximum", models.EntityAggregate, "MAX"),
	kw("max", models.EntityAggregate, "MAX"),
	kw("minimum", models.EntityAggregate, "MIN"),
	kw("min", models.EntityAggregate, "MIN"),

	// sort direction
	kw("descending", models.EntitySortDir, models.SortDesc),
	kw("desc", models.EntitySortDir, models.SortDesc),
	kw("highest", models.EntitySortDir, models.SortDesc),
	kw("largest", models.EntitySortDir, models.SortDesc),
	kw("biggest", models.EntitySortDir, models.SortDesc),
	kw("latest", models.EntitySortDir, models.SortDesc),
	kw("newest", models.EntitySortDir, models.SortDesc),
	kw("ascending", models.EntitySortDir, models.SortAsc),
	kw("asc", models.EntitySortDir, models.SortAsc),
	kw("lowest", models.EntitySortDir, models.SortAsc),
	kw("smallest", models.EntitySortDir, models.SortAsc),
	kw("oldest", models.EntitySortDir, models.SortAsc),
	kw("earliest", models.EntitySortDir, models.SortAsc),
})

func sortedKeywords(list []keyword) []keyword {
	slices.SortStableFunc(list, func(a, b keyword) int {
		return len(b.phrase) - len(a.phrase)
	})
	return list
}

// matchKeyword returns the longest keyword starting at token i.
func matchKeyword(tokens []string, i int) (keyword, bool) {
	for _, k := range keywords {
		if i+len(k.phrase) > len(tokens) {
			continue
		}
		if slices.Equal(tokens[i:i+len(k.phrase)], k.phrase) {
			return k, true
		}
	}
	return keyword{}, false
}

// isKeywordToken reports whether the single token t starts any keyword.
func isKeywordToken(t string) bool {
	for _, k := range keywords {
		if k.phrase[0] == t {
			return true
		}
	}
	return false
}

// comparisonOperator reports whether op compares a field with a value.
func comparisonOperator(op string) bool {
	switch op {
	case models.OpEqual, models.OpNotEqual, models.OpGreater, models.OpGreaterEqual,
		models.OpLess, models.OpLessEqual, models.OpLike:
		return true
	}
	return false
}
