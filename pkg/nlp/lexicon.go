package nlp

import "github.com/ekaya-inc/ekaya-nlq/pkg/models"

// builtinLexicon covers the Chinese function words and query vocabulary the
// extractors understand. Query words map to the English keywords the
// operator matcher recognises.
var builtinLexicon = []Term{
	// particles
	{Text: "的", Class: models.TokenParticle},
	{Text: "了", Class: models.TokenParticle},
	{Text: "吗", Class: models.TokenParticle},
	{Text: "呢", Class: models.TokenParticle},
	{Text: "吧", Class: models.TokenParticle},
	{Text: "啊", Class: models.TokenParticle},
	{Text: "地", Class: models.TokenParticle},
	{Text: "得", Class: models.TokenParticle},
	{Text: "着", Class: models.TokenParticle},
	{Text: "过", Class: models.TokenParticle},
	{Text: "个", Class: models.TokenParticle},
	{Text: "条", Class: models.TokenParticle},

	// request verbs and fillers
	{Text: "显示", Class: models.TokenStopword},
	{Text: "列出", Class: models.TokenStopword},
	{Text: "查询", Class: models.TokenStopword},
	{Text: "查找", Class: models.TokenStopword},
	{Text: "给我", Class: models.TokenStopword},
	{Text: "请", Class: models.TokenStopword},
	{Text: "所有", Class: models.TokenStopword},
	{Text: "哪些", Class: models.TokenStopword},
	{Text: "什么", Class: models.TokenStopword},

	// limits and ordering
	{Text: "前", Canonical: "top"},
	{Text: "最多", Canonical: "limit"},
	{Text: "降序", Canonical: "descending"},
	{Text: "升序", Canonical: "ascending"},
	{Text: "从高到低", Canonical: "descending"},
	{Text: "从低到高", Canonical: "ascending"},
	{Text: "按", Canonical: "by"},
	{Text: "按照", Canonical: "by"},

	// comparisons
	{Text: "大于", Canonical: "above"},
	{Text: "超过", Canonical: "above"},
	{Text: "小于", Canonical: "below"},
	{Text: "低于", Canonical: "below"},
	{Text: "等于", Canonical: "equals"},
	{Text: "不等于", Canonical: "unequal"},
	{Text: "是", Canonical: "is"},
	{Text: "包含", Canonical: "contains"},

	// aggregates
	{Text: "数量", Canonical: "count"},
	{Text: "个数", Canonical: "count"},
	{Text: "计数", Canonical: "count"},
	{Text: "总和", Canonical: "sum"},
	{Text: "总计", Canonical: "sum"},
	{Text: "平均", Canonical: "average"},
	{Text: "最大", Canonical: "max"},
	{Text: "最小", Canonical: "min"},

	// connectives
	{Text: "并且", Canonical: "and"},
	{Text: "而且", Canonical: "and"},
	{Text: "且", Canonical: "and"},
	{Text: "和", Canonical: "and"},
	{Text: "或者", Canonical: "or"},
	{Text: "或", Canonical: "or"},
}

// englishStopwords are request verbs and function words that carry no
// entity. Nouns stay in the stream since any of them may name a table or
// column. Operator keywords (is, by, and, or, top, ...) are absent too.
var englishStopwords = map[string]bool{
	"a": true, "an": true, "the": true,
	"me": true, "us": true, "please": true,
	"show": true, "list": true, "give": true, "get": true, "find": true,
	"display": true, "fetch": true,
	"what": true, "which": true,
	"where": true, "whose": true, "with": true, "that": true,
	"of": true, "for": true, "from": true, "in": true,
}
