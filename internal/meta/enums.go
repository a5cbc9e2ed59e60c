package meta

import (
	"slices"
	"strings"
)

// Controlled vocabularies. Values are the canonical labels written to meta.md and meta.json.
var (
	Modalities = []string{"自然语言文本", "代码", "流量", "日志", "结构化/表格", "二进制", "图像", "音频", "视频", "多模态"}
	UseCases   = []string{"模型预训练", "模型微调", "模型微调(含思维链)", "模型评测", "强化学习", "分类/回归", "实体识别", "数据分析", "混合用途"}
	Domains    = []string{"基础通用", "网络攻防", "安全认知", "体系化防御"}

	BusinessDirections = []string{"代码分析", "工具生成", "情报分析", "日志分析", "流量分析", "漏洞挖掘", "策略规划", "目标检测", "策略验证", "高级关联威胁分析", "诱捕"}
	BusinessPoints     = []string{"代码辅助生成", "工具测试", "技战法设计", "目标分析", "目标探测", "脆弱性分析", "静态分析", "动态分析", "模糊测试", "脆弱性利用", "高级代码设计", "验证环境生成"}

	Ratings      = []string{"基础", "进阶", "高级", "专用私有"}
	PIIRisks     = []string{"none", "low", "medium", "high"}
	AccessLevels = []string{"public", "internal", "private"}
)

// Single-valued enum fields and their vocabularies.
var enumFields = map[string][]string{
	"modality":     Modalities,
	"use_case":     UseCases,
	"domain":       Domains,
	"rating":       Ratings,
	"pii_risk":     PIIRisks,
	"access_level": AccessLevels,
}

// Multi-select enum fields. Items that cannot be corrected are dropped.
var multiEnumFields = map[string][]string{
	"business_direction": BusinessDirections,
	"business_point":     BusinessPoints,
}

// Fields turned from "a|b" strings into lists before correction.
var multiSelectFields = []string{"business_direction", "business_point", "task_types"}

var enumDefaults = map[string]string{
	"modality":     "代码",
	"use_case":     "模型评测",
	"domain":       "基础通用",
	"rating":       "基础",
	"pii_risk":     "none",
	"access_level": "public",
}

// keywordTable is checked in order after exact and substring matching fail.
var keywordTable = []struct{ keyword, value string }{
	{"text", "自然语言文本"},
	{"code", "代码"},
	{"image", "图像"},
	{"audio", "音频"},
	{"video", "视频"},
	{"table", "结构化/表格"},
	{"training", "模型预训练"},
	{"finetune", "模型微调"},
	{"eval", "模型评测"},
	{"basic", "基础"},
	{"advanced", "高级"},
	{"cyber", "网络攻防"},
	{"security", "安全认知"},
}

// Vocabulary returns the allowed values of an enum field, or nil when the field is free-form.
func Vocabulary(field string) []string {
	if v, ok := enumFields[field]; ok {
		return v
	}
	return multiEnumFields[field]
}

// Default returns the value used when an enum field cannot be corrected.
func Default(field string) string {
	if d, ok := enumDefaults[field]; ok {
		return d
	}
	if v := Vocabulary(field); len(v) > 0 {
		return v[0]
	}
	return ""
}

// IsValid reports whether value is a member of the field's vocabulary.
func IsValid(field, value string) bool {
	return slices.Contains(Vocabulary(field), value)
}

// Match fuzzily maps value onto a member of valid: case-insensitive exact
// match, then substring either way, then the keyword table. Pipe-separated
// values try each part in order.
func Match(value string, valid []string) (string, bool) {
	if value == "" {
		return "", false
	}
	if strings.Contains(value, "|") {
		for _, part := range strings.Split(value, "|") {
			if m, ok := Match(strings.TrimSpace(part), valid); ok {
				return m, true
			}
		}
	}

	lower := strings.ToLower(value)
	for _, v := range valid {
		if strings.ToLower(v) == lower {
			return v, true
		}
	}
	for _, v := range valid {
		vl := strings.ToLower(v)
		if strings.Contains(vl, lower) || strings.Contains(lower, vl) {
			return v, true
		}
	}
	for _, kw := range keywordTable {
		if strings.Contains(lower, kw.keyword) && slices.Contains(valid, kw.value) {
			return kw.value, true
		}
	}
	return "", false
}

// Correct maps value onto the field's vocabulary, falling back to the
// field default. The bool is false when the default had to be used.
func Correct(field, value string) (string, bool) {
	if m, ok := Match(value, Vocabulary(field)); ok {
		return m, true
	}
	return Default(field), false
}
