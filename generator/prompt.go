package generator

import (
	"fmt"
	"strings"

	"newsroom_writer/llm"
)

const (
	// sourceBudget 为源材料/稿件放入提示词的最大字符数。
	sourceBudget = 8000
	// selectionBudget 为分类选择请求中正文的最大字符数。
	selectionBudget = 4000
)

// houseRules 是所有写作类提示词共享的格式与措辞要求。
const houseRules = `CRITICAL FORMATTING RULES:
- Never use markdown of any kind (**, *, _, #, bullet lists). Plain text only; the CMS handles formatting.
- No section headers.

WRITING STYLE:
- Professional news style for IntelliNews, objective and factual, no editorial opinion.
- British English spelling (favour, colour, organisation).
- Digits for numbers 10 and above, words for numbers below 10.
- Active voice, short clear sentences.
- Lead with the most important, newsworthy fact.
- No summary or analysis paragraph at the end.

NEVER USE:
- Furthermore, Moreover, Additionally, Consequently, Nevertheless
- Subsequently, In essence, It's worth noting that, It's important to understand
- Various, Numerous, Myriad, Plethora, Multifaceted
- Comprehensive, Robust, Dynamic, Innovative, Cutting-edge
- Delve, Dive into, Unpack

DATES:
- Never use dates in the future; check every date against the source.`

// BuildDraftPrompt 生成首稿提示词。
func BuildDraftPrompt(fwContext string, req WriteRequest) llm.Prompt {
	var sys strings.Builder
	sys.WriteString("You are an expert journalist writing for IntelliNews.\n\n")
	sys.WriteString(fwContext)
	sys.WriteString("\n\nCRITICAL RULES:\n")
	sys.WriteString("- NO markdown formatting (**, *, _, etc.), plain text only\n")
	sys.WriteString("- Follow the IntelliNews style framework exactly\n")
	sys.WriteString("- Lead with the most newsworthy fact\n")
	sys.WriteString("- Use British English spelling\n")
	sys.WriteString("- Include proper source attribution\n")
	sys.WriteString("- Write like a professional journalist\n\n")
	sys.WriteString(houseRules)

	var user strings.Builder
	user.WriteString("Write a news article based on this source content.\n\n")
	fmt.Fprintf(&user, "USER INSTRUCTIONS: %s\n\n", userPrompt(req))
	writeLanguageNote(&user, req.SourceLanguage)
	fmt.Fprintf(&user, "SOURCE CONTENT:\n---\n%s\n---\n\n", llm.Truncate(req.SourceContent, sourceBudget))
	user.WriteString("Write the complete article now. Remember: no markdown formatting, follow the IntelliNews style exactly, and use British English spelling.")

	return llm.Prompt{System: sys.String(), User: user.String()}
}

// BuildRefinePrompt 生成修订提示词；feedback 原样作为修订要求。
func BuildRefinePrompt(fwContext string, req WriteRequest, current, feedback string) llm.Prompt {
	var sys strings.Builder
	sys.WriteString("You are an expert journalist revising an article for IntelliNews.\n\n")
	sys.WriteString(fwContext)
	sys.WriteString("\n\nThe Style Guru has reviewed your article and provided detailed feedback. ")
	sys.WriteString("Revise the article to address ALL the feedback points.\n\n")
	sys.WriteString("CRITICAL RULES:\n")
	sys.WriteString("- NO markdown formatting (**, *, _, etc.), plain text only\n")
	sys.WriteString("- Follow the IntelliNews style framework exactly\n")
	sys.WriteString("- Address every point in the feedback\n")
	sys.WriteString("- Maintain factual accuracy to the source content\n")
	sys.WriteString("- Use British English spelling\n\n")
	sys.WriteString(houseRules)

	var user strings.Builder
	fmt.Fprintf(&user, "CURRENT ARTICLE:\n---\n%s\n---\n\n", llm.Truncate(current, sourceBudget))
	fmt.Fprintf(&user, "STYLE GURU FEEDBACK:\n---\n%s\n---\n\n", feedback)
	writeLanguageNote(&user, req.SourceLanguage)
	fmt.Fprintf(&user, "SOURCE CONTENT (for reference):\n---\n%s\n---\n\n", llm.Truncate(req.SourceContent, sourceBudget))
	user.WriteString("Output ONLY the revised article. Remember to use British English spelling.")

	return llm.Prompt{System: sys.String(), User: user.String()}
}

// BuildSummaryPrompt 生成摘要提示词。
func BuildSummaryPrompt(text string) llm.Prompt {
	return llm.Prompt{
		System: "You are an expert summarisation engine. Create a concise, factual summary of the provided text, " +
			"keeping all key names, dates, locations and financial figures. The summary should be dense with " +
			"information and ready for a journalist to use as a source.",
		User: fmt.Sprintf("TEXT TO SUMMARISE:\n---\n%s\n---", llm.Truncate(text, sourceBudget)),
	}
}

// BuildReflectionPrompt 请求编辑对稿件逐条点评。
func BuildReflectionPrompt(draft, source string) llm.Prompt {
	var user strings.Builder
	user.WriteString("Critique the following draft article. Give a structured list of specific, actionable feedback points.\n\n")
	user.WriteString("CRITERIA:\n")
	user.WriteString("1. Factual accuracy: identify every claim in the draft that the SOURCE CONTENT does not support.\n")
	user.WriteString("2. Stylistic adherence: list any violations of the house style guide.\n")
	user.WriteString("3. Clarity and coherence: assess flow, structure and readability.\n\n")
	fmt.Fprintf(&user, "SOURCE CONTENT:\n---\n%s\n---\n\n", llm.Truncate(source, sourceBudget))
	fmt.Fprintf(&user, "DRAFT ARTICLE TO CRITIQUE:\n---\n%s\n---", llm.Truncate(draft, sourceBudget))
	return llm.Prompt{
		System: "You are a critical editor giving structured feedback on a draft. Check it for factual accuracy " +
			"against the source, adherence to the house style and overall clarity. Do not use markdown.\n\n" + houseRules,
		User: user.String(),
	}
}

// BuildCritiqueRevisionPrompt 按编辑点评修订稿件。
func BuildCritiqueRevisionPrompt(draft, critique string) llm.Prompt {
	return llm.Prompt{
		System: "You are a writer revising an article based on specific editor feedback. Your output must be plain " +
			"text with no markdown. Output only the revised article.\n\n" + houseRules,
		User: fmt.Sprintf("EDITOR FEEDBACK:\n---\n%s\n---\n\nORIGINAL DRAFT ARTICLE:\n---\n%s\n---",
			critique, llm.Truncate(draft, sourceBudget)),
	}
}

// BuildMetadataPrompt 请求 SEO 等元数据（JSON）。
func BuildMetadataPrompt(article string) llm.Prompt {
	schema := `{
  "title": "concise, compelling, SEO-friendly title",
  "seo_description": "meta description, 155 characters max",
  "seo_keywords": "comma-separated keywords",
  "hashtags": ["#three", "#to", "#five"],
  "weekly_title_value": "very short, punchy newsletter title",
  "website_callout_value": "brief front-page callout",
  "social_media_callout_value": "social media phrase under 250 characters",
  "abstract_value": "summary, 150 characters max",
  "google_news_keywords_value": "comma-separated keywords for Google News",
  "daily_subject_value": "one of: Macroeconomic News, Banking And Finance, Companies and Industries, Political",
  "key_point_value": "Yes or No",
  "machine_written_value": "Yes or No",
  "byline_value": "author name, or staff writer",
  "ballot_box_value": "Yes if the article is about elections, otherwise No"
}`
	return llm.Prompt{
		System: "You are an expert sub-editor generating metadata for an article. All values must be plain text " +
			"without markdown. Respond with one valid JSON object and nothing else. Do not include publications, " +
			"countries or industries.",
		User: fmt.Sprintf("Return JSON with exactly these keys:\n%s\n\nHere is the article to analyse:\n---\n%s\n---",
			schema, llm.Truncate(article, sourceBudget)),
	}
}

// selectionKinds 定义三类分类选择的提示语。
var selectionKinds = map[string]string{
	"countries": "You are an expert data extractor. Identify the main country or countries discussed in the article. " +
		"Choose only from the list of available countries.",
	"publications": "You are an expert sub-editor. Select the most appropriate publications for the article from the list. " +
		"Choose the MOST SPECIFIC publication possible.",
	"industries": "You are an expert data analyst. Select the most relevant industries for the article from the list. " +
		"Choose the MOST SPECIFIC industry possible and select at least one.",
}

// BuildSelectionPrompt 让模型从候选列表中选择，返回逗号分隔的名称。
func BuildSelectionPrompt(kind string, options []string, article string) llm.Prompt {
	return llm.Prompt{
		System: selectionKinds[kind] + " Your response must be a single, comma-separated string of the selected names.",
		User: fmt.Sprintf("AVAILABLE %s:\n---\n%s\n---\n\nARTICLE TEXT:\n---\n%s\n---",
			strings.ToUpper(kind), strings.Join(options, ", "), llm.Truncate(article, selectionBudget)),
	}
}

func userPrompt(req WriteRequest) string {
	if strings.TrimSpace(req.UserPrompt) == "" {
		return DefaultUserPrompt
	}
	return req.UserPrompt
}

func writeLanguageNote(sb *strings.Builder, lang string) {
	if lang == "" || strings.EqualFold(lang, "english") {
		return
	}
	fmt.Fprintf(sb, "NOTE: the source content is written in %s. Write the article in British English.\n\n", lang)
}
