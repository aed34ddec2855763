package prompts

import (
	"context"
	"fmt"
)

var defaultPrompts = []CreateInput{
	{
		Name:         "Summarize text",
		Description:  "Condense long text into a short summary.",
		Template:     "Summarize the following text as 3-5 concise key points:\n\n{{input}}\n\nSummary:",
		Category:     "Text analysis",
		OutputFormat: FormatText,
	},
	{
		Name:         "Proofread",
		Description:  "Fix grammar, spelling and punctuation.",
		Template:     "Correct the grammar, spelling and punctuation of the following text. Keep the meaning and style of the original and only fix mistakes:\n\n{{input}}\n\nCorrected text:",
		Category:     "Editing",
		OutputFormat: FormatText,
	},
	{
		Name:         "Blog post",
		Description:  "Write a blog post about a topic.",
		Template:     "Write a blog post about the following topic. Include a title, an introduction, a body split into several sections and a conclusion:\n\n{{input}}\n\nBlog post:",
		Category:     "Content",
		OutputFormat: FormatHTML,
	},
	{
		Name:         "Convert to HTML",
		Description:  "Turn plain text into structured HTML.",
		Template:     "Convert the following text to HTML. Structure it with appropriate tags and add CSS where it helps:\n\n{{input}}\n\nHTML:",
		Category:     "Code",
		OutputFormat: FormatHTML,
	},
	{
		Name:         "Convert to Markdown",
		Description:  "Turn plain text into Markdown.",
		Template:     "Convert the following text to Markdown. Use headings, lists, emphasis and links where appropriate:\n\n{{input}}\n\nMarkdown:",
		Category:     "Editing",
		OutputFormat: FormatText,
	},
	{
		Name:         "Refactor code",
		Description:  "Make code more readable and efficient.",
		Template:     "Refactor the following code. Improve readability, efficiency and maintainability and follow common best practices:\n\n{{input}}\n\nRefactored code:",
		Category:     "Code",
		OutputFormat: FormatText,
	},
	{
		Name:         "Write SQL",
		Description:  "Turn a natural-language request into SQL.",
		Template:     "Turn the following requirement into an SQL query:\n\n{{input}}\n\nSQL query:",
		Category:     "Code",
		OutputFormat: FormatText,
	},
	{
		Name:         "Write email",
		Description:  "Draft a professional email.",
		Template:     "Write a professional email for the following situation:\n\n{{input}}\n\nEmail:",
		Category:     "Content",
		OutputFormat: FormatText,
	},
	{
		Name:         "Translate English to Korean",
		Description:  "Translate English text into natural Korean.",
		Template:     "Translate the following English text into Korean. Keep the meaning and nuance of the original:\n\n{{input}}\n\nKorean translation:",
		Category:     "Translation",
		OutputFormat: FormatText,
	},
	{
		Name:         "Translate Korean to English",
		Description:  "Translate Korean text into natural English.",
		Template:     "Translate the following Korean text into English. Keep the meaning and nuance of the original:\n\n{{input}}\n\nEnglish translation:",
		Category:     "Translation",
		OutputFormat: FormatText,
	},
}

// Defaults returns the built-in shared templates.
func Defaults() []CreateInput {
	out := make([]CreateInput, len(defaultPrompts))
	copy(out, defaultPrompts)
	for i := range out {
		out[i].IsAdminPrompt = true
	}
	return out
}

// SeedDefaults stores every built-in template whose name is not already
// used by a shared prompt. It returns how many prompts were created.
func SeedDefaults(ctx context.Context, store Store, ownerID string) (int, error) {
	existing, err := store.ListPrompts(ctx, Filter{SharedOnly: true})
	if err != nil {
		return 0, fmt.Errorf("list shared prompts: %w", err)
	}
	names := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		names[p.Name] = struct{}{}
	}

	created := 0
	for _, in := range Defaults() {
		if _, ok := names[in.Name]; ok {
			continue
		}
		desc := in.Description
		if _, err := store.CreatePrompt(ctx, Prompt{
			UserID:        ownerID,
			Name:          in.Name,
			Description:   &desc,
			Template:      in.Template,
			Category:      in.Category,
			OutputFormat:  in.OutputFormat,
			IsAdminPrompt: true,
		}); err != nil {
			return created, fmt.Errorf("create prompt %q: %w", in.Name, err)
		}
		created++
	}
	return created, nil
}
