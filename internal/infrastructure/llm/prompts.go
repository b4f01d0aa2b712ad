package llm

import (
	"fmt"
	"strings"

	"PaperDigest/internal/domain"
)

// abstractLen caps how much of each abstract goes into a prompt.
const abstractLen = 300

const summaryPrompt = `You are an expert science communicator. Given a research paper PDF, produce a structured JSON summary.

All text fields support **Markdown** and **LaTeX math**.

Your response must be valid JSON with exactly these fields:
{
  "summary": "A 3-4 paragraph markdown explanation. Use **bold** for key terms on first mention and ### subheadings where natural.",
  "technicalDetails": "A detailed markdown technical breakdown with ### subheadings per aspect, LaTeX for every key formula ($...$ inline, $$...$$ display), and concrete numbers, hyperparameters and dataset sizes.",
  "keyFindings": ["Each finding as a 1-2 sentence markdown string with the key insight in **bold**."],
  "diagrams": [{"figureNumber": "Figure 1", "description": "What this figure shows and why it matters", "pageNumber": 1}],
  "mermaidDiagrams": [{"title": "Descriptive Title", "code": "Valid mermaid.js flowchart code for the architecture or pipeline."}],
  "tldr": "A single punchy sentence with **bold** key terms."
}

Rules:
- For LaTeX in JSON strings, escape backslashes: use \\\\alpha not \\alpha.
- Produce 1-2 mermaid diagrams. Prefer "flowchart TD" or "flowchart LR", 5-10 nodes, short labels, simple ASCII node ids, no parentheses in subgraph titles and no < or > inside labels.
- List EVERY figure and table. pageNumber must be the exact 1-indexed PDF page where the figure appears.
- Be accurate and thorough. In technicalDetails include the actual equations, not descriptions of them.`

func analyzeInstruction(title string) string {
	return fmt.Sprintf("Please analyze this paper: %q and produce the JSON summary as specified.", title)
}

// TrendPrompt asks for a short gaps-and-opportunities analysis of recent papers.
func TrendPrompt(topic string, window domain.Range, papers []domain.ListedPaper) string {
	lines := make([]string, 0, len(papers))
	for _, p := range papers {
		line := p.Title
		if abstract := clip(p.Abstract, abstractLen); abstract != "" {
			line += "\n   Abstract: " + abstract
		}
		lines = append(lines, line)
	}
	return fmt.Sprintf(`You are a research trend analyst. Given %d recent papers from %s (past %s), write a sharp analysis in **100 words or fewer**. No filler, no preamble.

Structure (use these exact headers with ##):

## Gaps & Issues
2-3 bullet points. What critical problems remain unsolved? Name methods and domains.

## Research Opportunities
2-3 bullet points. Where should new research focus? Suggest concrete angles combining insights from these papers.

**Bold** key terms. Be direct and technical.

Papers:
%s`, len(papers), topic, window, numbered(lines))
}

// DevPulsePrompt asks for a short developer-facing brief of recent blog and newsletter titles.
func DevPulsePrompt(titles []string) string {
	return fmt.Sprintf(`You are an AI engineering analyst writing for developers. Given %d recent blog post and newsletter titles from the AI engineering space, write a sharp analysis in **100 words or fewer**. No filler, no preamble.

Structure (use these exact headers with ##):

## What's Shipping
2-3 bullet points. Which tools, frameworks, releases or patterns are gaining real traction? Name specific projects.

## What to Watch
2-3 bullet points. Which emerging techniques or workflow shifts should engineers pay attention to?

**Bold** key terms. Be direct and practical.

Titles:
%s`, len(titles), numbered(titles))
}

// MarketPrompt asks for an industry brief from news headlines and their snippets.
func MarketPrompt(items []domain.FeedItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		line := item.Title
		if item.Snippet != "" {
			line += "\n   Summary: " + item.Snippet
		}
		lines = append(lines, line)
	}
	return fmt.Sprintf(`You are a senior AI industry analyst writing a daily market brief. Given %d recent AI industry articles (titles and summaries), write a sharp market trends analysis in **120 words or fewer**. No filler, no preamble.

Structure (use these exact headers with ##):

## Where Investment Is Flowing
2-3 bullet points. Which sectors, companies or technologies are attracting capital? Name deals and rounds where possible.

## Big Company Moves
2-3 bullet points. What are the major AI companies focused on, and which strategic shifts are happening?

## Industry Direction
2-3 bullet points. Which bets are shaping the next 6-12 months?

**Bold** key terms. Write for investors and strategists.

Articles:
%s`, len(items), numbered(lines))
}

const tagsPrompt = `For each paper below, produce a JSON object with exactly these fields:
- "mlTag": one of ["LLMs", "Vision", "RL", "Generative", "Optimization", "Graph", "Theory", "Systems", "Data", "Other"]
- "appTag": one of ["Healthcare", "Robotics", "Code", "Science", "Education", "Finance", "NLP", "Security", "Retrieval", "General"]
- "description": a 2-3 sentence markdown description with **bold** key terms.

Return only a JSON array of objects in the same order as the papers.`

// TagsPrompt asks for one tag object per paper, in input order.
func TagsPrompt(papers []domain.ListedPaper) string {
	var b strings.Builder
	b.WriteString(tagsPrompt)
	b.WriteString("\n\nPapers:\n")
	for i, p := range papers {
		fmt.Fprintf(&b, "%d. Title: %q | Abstract: %q\n", i+1, p.Title, clip(p.Abstract, abstractLen))
	}
	return strings.TrimRight(b.String(), "\n")
}

// clip trims s to at most n runes.
func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > n {
		return strings.TrimSpace(string(runes[:n]))
	}
	return s
}

func numbered(lines []string) string {
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, line)
	}
	return strings.TrimRight(b.String(), "\n")
}
