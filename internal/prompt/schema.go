// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

// JSON schemas handed to the model. The engine treats them as opaque text;
// the Go types that decode the answers live next to their callers.
const (
	schemaStructure = `{
  "type": "array",
  "items": {
    "type": "object",
    "properties": {
      "title": {"type": "string"},
      "content": {"type": "string"}
    },
    "required": ["title", "content"]
  }
}`

	schemaDecision = `{
  "type": "object",
  "properties": {
    "search_query": {"type": "string"},
    "search_tool": {"type": "string", "enum": ["hot_content", "topic_globally", "topic_by_date", "comments_for_topic", "topic_on_platform", "sentiment_analysis"]},
    "reasoning": {"type": "string"},
    "start_date": {"type": "string", "description": "YYYY-MM-DD, required by topic_by_date, optional for topic_on_platform"},
    "end_date": {"type": "string", "description": "YYYY-MM-DD, required by topic_by_date, optional for topic_on_platform"},
    "platform": {"type": "string", "description": "required by topic_on_platform: bilibili, weibo, douyin, kuaishou, xhs, zhihu, tieba"},
    "time_period": {"type": "string", "description": "hot_content window: 24h, week, year"},
    "enable_sentiment": {"type": "boolean"},
    "texts": {"type": "array", "items": {"type": "string"}, "description": "only for sentiment_analysis"},
    "terminal": {"type": "boolean", "description": "true when no further search is needed"}
  },
  "required": ["search_query", "search_tool", "reasoning"]
}`

	schemaFirstSummary = `{
  "type": "object",
  "properties": {
    "paragraph_latest_state": {"type": "string"}
  },
  "required": ["paragraph_latest_state"]
}`

	schemaReflectionSummary = `{
  "type": "object",
  "properties": {
    "updated_paragraph_latest_state": {"type": "string"}
  },
  "required": ["updated_paragraph_latest_state"]
}`

	schemaTemplateSelection = `{
  "type": "object",
  "properties": {
    "template_name": {"type": "string"},
    "selection_reason": {"type": "string"}
  },
  "required": ["template_name", "selection_reason"]
}`
)
