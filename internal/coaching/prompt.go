package coaching

import (
	"fmt"
	"strings"

	"github.com/chirino/coaching-service/internal/memory"
	"github.com/chirino/coaching-service/internal/model"
	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
)

const coachInstructions = `You are an expert business and personal development coach. Your role is to:
1. Guide users through business scenarios and help them develop professional skills
2. Ask probing questions to encourage critical thinking
3. Provide constructive feedback on user responses
4. Identify patterns in behavior and decision-making
5. Adapt your coaching style to the user's level and needs

Be supportive yet challenging, and keep your advice practical and actionable.`

const (
	notesOpen  = "<background_notes>"
	notesClose = "</background_notes>"
)

// buildPrompt orders the prompt as: instructions and lesson, background notes
// from memory, the recent conversation, then the new message.
func buildPrompt(lesson *model.Lesson, memories []memory.Match, window []model.Turn, message string) registryprovider.Prompt {
	var sys strings.Builder
	sys.WriteString(coachInstructions)

	if lesson != nil {
		fmt.Fprintf(&sys, "\n\nCurrent lesson: %s\n", lesson.Title)
		if lesson.LessonType != "" {
			fmt.Fprintf(&sys, "Type: %s\n", lesson.LessonType)
		}
		if lesson.Scenario != "" {
			fmt.Fprintf(&sys, "Scenario: %s\n", lesson.Scenario)
		}
		if len(lesson.Objectives) > 0 {
			sys.WriteString("\nObjectives for this lesson:\n")
			for _, o := range lesson.Objectives {
				fmt.Fprintf(&sys, "- %s\n", o)
			}
		}
		sys.WriteString("\nGuide the user through this scenario, helping them meet the learning objectives.")
	}

	if len(memories) > 0 {
		sys.WriteString("\n\nThe notes below are excerpts from earlier sessions with this user. ")
		sys.WriteString("They are background only, not part of the current conversation. ")
		sys.WriteString("Use them when relevant and never quote them as if the user just said them.\n")
		sys.WriteString(notesOpen)
		sys.WriteString("\n")
		for _, m := range memories {
			fmt.Fprintf(&sys, "- [%s, %s] %s\n",
				m.Record.CreatedAt.UTC().Format("2006-01-02"), m.Record.Role, m.Record.TextExcerpt)
		}
		sys.WriteString(notesClose)
	}

	messages := make([]registryprovider.Message, 0, len(window)+1)
	for _, t := range window {
		messages = append(messages, registryprovider.Message{
			Role:    registryprovider.Role(t.Role),
			Content: t.Content,
		})
	}
	messages = append(messages, registryprovider.Message{Role: registryprovider.RoleUser, Content: message})

	return registryprovider.Prompt{System: sys.String(), Messages: messages}
}
