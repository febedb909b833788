// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import "text/template"

var toolDescriptions = []struct {
	Name string
	Desc string
}{
	{"hot_content", "Most discussed content in a time window. Parameter time_period: 24h, week or year."},
	{"topic_globally", "Full-text search across every platform's posts and comments."},
	{"topic_by_date", "Full-text search restricted to a date range. Requires start_date and end_date (YYYY-MM-DD)."},
	{"comments_for_topic", "Full-text search over user comments only; best for raw public voice."},
	{"topic_on_platform", "Full-text search on one platform. Requires platform (bilibili, weibo, douyin, kuaishou, xhs, zhihu, tieba); start_date and end_date are optional."},
	{"sentiment_analysis", "Classifies the sentiment of the given texts, or of the top posts for search_query when texts is empty."},
}

const toolsBlock = `Available search tools:
{{range .Tools}}- {{.Name}}: {{.Desc}}
{{end}}`

var structureTmpl = template.Must(template.New("structure").Parse(`You are {{.Role}}.
Plan the structure of a report for the user's query. Produce exactly {{.sections}} sections, ordered as they should appear in the report.
For each section give a short title and a description of the content it is expected to cover. Keep the focus on {{.Focus}}.
The first section should frame the topic and the last should hold conclusions and recommendations.`))

var firstSearchTmpl = template.Must(template.New("first_search").Parse(`You are {{.Role}}.
You are given one section of a report: its title and the content it is expected to cover.
Choose the single search that gathers the most useful evidence for this section and explain why.

` + toolsBlock + `
Respect each tool's required parameters. Set enable_sentiment when opinion polarity matters for the section.`))

var firstSummaryTmpl = template.Must(template.New("first_summary").Parse(`You are {{.Role}}.
Write the first version of a report paragraph from the section plan and the raw search results.
Use concrete facts, figures and quotations from the results. Do not invent data that is not in the results.
Write in a professional analytical register focused on {{.Focus}}.`))

var reflectionTmpl = template.Must(template.New("reflection").Parse(`You are {{.Role}}.
You are given a section plan and the current state of its paragraph. Find the most important gap: missing evidence, missing viewpoints, or stale data.
If the paragraph is already complete, set "terminal": true and leave search_query empty.
Otherwise choose one search that fills the gap.

` + toolsBlock))

var reflectionSummaryTmpl = template.Must(template.New("reflection_summary").Parse(`You are {{.Role}}.
Enrich the current paragraph with the new search results. Keep every key fact already in the paragraph and add the new evidence; never replace the paragraph with a shorter one.
Remove duplicated statements and keep the register analytical.`))

var formattingMarkdownTmpl = template.Must(template.New("formatting_markdown").Parse(`You are {{.Role}}.
Assemble the final report from the researched sections. Keep the section order. Use Markdown: a title, a short executive summary, one "##" heading per section, and a closing conclusion.
Keep the evidence from each section and write connecting transitions. When a template is provided, follow its structure.
Return only the Markdown document.`))

var formattingHTMLTmpl = template.Must(template.New("formatting_html").Parse(`You are {{.Role}}.
Assemble a complete HTML report from the researched sections and, when present, the reports of the sibling analysis engines and their discussion logs.
Requirements:
- a complete document with DOCTYPE, html, head and body, embedded CSS, responsive layout
- a title, an executive summary and a table of contents at the start, not in a sidebar
- one section per researched section, in order, integrating engine reports without repetition
- conclusions and recommendations, then a data appendix
- all content visible without interaction, suitable for printing to PDF
When a template is provided, follow its structure.
Return only the HTML code.`))

var templateSelectionTmpl = template.Must(template.New("template_selection").Parse(`You are a report template selection assistant.
Choose the one template that best fits the user's query, considering the topic type, urgency, depth of analysis and audience.
Return the template name exactly as listed.`))

var expertReviewTmpl = template.Must(template.New("expert_review").Parse(`You are a senior domain expert reviewing a finished report.
Correct factual inconsistencies, sharpen weak conclusions, and annotate claims that need caution, applying the business rules given.
Keep the document's structure and format ({{.Format}}). Return only the revised document.`))
