package generate

import (
	"fmt"
	"strings"
)

const treeSystemPrompt = `You are a knowledge architect. Given a topic, build a hierarchical roadmap that helps a learner work through it.

Structure:
- The root is a single "pot" node naming the topic.
- "trunk" nodes are the main stages of the roadmap, in learning order.
- "branch" nodes group the subtopics of a stage.
- "leaf" nodes are concrete concepts, skills or resources.

Every node has an id (unique within the tree), a short label, a type (pot, trunk, branch or leaf), a level (the depth, root is 0) and optional children.

Rules:
- Use every node type at least once.
- Give each branch at most 3 leaves.
- Set metadata.needMoreInfo to true and explain in metadata.additionalInfo when the topic is too vague to build a useful tree.
- Reply with ONLY a JSON object matching the provided schema. No prose and no markdown fences.`

const nodeContentSystemPrompt = `You are a knowledge architect writing study material for one node of a knowledge tree.
You will receive the JSON of that node (with its subtree) and the id to write about.

Write informative, engaging content about that node only, in the context of its subtree.
Make it at least 200 words.
Finish with a short list of links to the most authoritative sources on the topic, as markdown links.
Always answer in Markdown.`

const quizSystemPrompt = `You are a quiz author. You will receive a knowledge tree as JSON and must write questions that test understanding of its concepts.

Rules:
- Cover different parts and levels of the tree.
- Mix basic recall, application and analytical questions.
- Give every question exactly four choices: one correct answer and three plausible distractors.
- The answer must be copied verbatim from the choices.
- Reply with ONLY a JSON object matching the provided schema.`

const maxSourceChars = 20000

func treeUserPrompt(prompt, source string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a detailed tree structure based on the following prompt: %s", prompt)
	if source = strings.TrimSpace(source); source != "" {
		if len(source) > maxSourceChars {
			source = strings.ToValidUTF8(source[:maxSourceChars], "")
		}
		fmt.Fprintf(&sb, "\n\n[Reference material]\n%s", source)
	}
	return sb.String()
}

func nodeContentUserPrompt(span, nodeID string) string {
	return fmt.Sprintf("Here are the found results: %s, generate content ONLY for \"id\": %q", span, nodeID)
}

func quizUserPrompt(docJSON []byte) string {
	return "Create quiz questions and answers based on the following knowledge tree structure: " + string(docJSON)
}
