package app

import (
	"strings"

	"storybloom/pkg/domain"
)

const storyPromptTemplate = `create kids story on description for {ageGroup} kids, {storyType} story, and all images in {imageType} style: {storySubject}, give me 5 chapters, With detailed image text prompt for each of chapter and image prompt for story cover book with story name. Return ONLY valid JSON in this exact format:
{
  "storyTitle": "story title here",
  "storyCover": {
    "imagePrompt": "detailed image prompt for cover in {imageType} style"
  },
  "chapters": [
    {
      "chapterNumber": 1,
      "chapterTitle": "chapter title",
      "textContent": "detailed chapter story text here (at least 100-150 words with 2-3 paragraphs)",
      "imagePrompt": "detailed image prompt for this chapter in {imageType} style"
    }
  ]
}
Important: Each chapter's "textContent" field must contain the actual story narrative for that chapter (100-150 words). Make the story engaging and age-appropriate for {ageGroup} kids. Avoid any text outside JSON, only return valid JSON.`

// buildStoryPrompt fills the generation prompt from the request parameters.
func buildStoryPrompt(req domain.StoryRequest) string {
	replacer := strings.NewReplacer(
		"{ageGroup}", string(req.AgeGroup),
		"{storyType}", string(req.StoryType),
		"{imageType}", string(req.ImageStyle),
		"{storySubject}", req.Subject,
	)
	return replacer.Replace(storyPromptTemplate)
}

// buildCoverPrompt prepends the title instruction to the model-produced
// cover prompt so the rendered cover carries the story name.
func buildCoverPrompt(title, coverImagePrompt string) string {
	return "Add text with title: -" + title + "- in bold text for book cover," + coverImagePrompt
}
