package generator

import "ppt_generator/tools"

// Research task output files, relative to the task sink.
const (
	SlidesFile = "slides.md"
	DepthFile  = "depth.md"
)

// NewTopicExplorer maps out the topic. search is normally the validated web search.
func NewTopicExplorer(llm LLMClient, search tools.Tool) *Agent {
	return &Agent{
		Name:      "topic_explorer",
		Role:      "Topic Explorer",
		Goal:      "Map out {topic}: its core concepts, the questions an audience will ask and the most recent developments worth a slide.",
		Backstory: "You are a curious analyst who turns a bare topic into a clear structure before anyone writes a word. You rely on current sources, not memory.",
		Tools:     []tools.Tool{search},
		LLM:       llm,
	}
}

// NewInDepthResearcher digs into each slide. Its tool chain is search then page reader.
func NewInDepthResearcher(llm LLMClient, search, reader tools.Tool) *Agent {
	chain := []tools.Tool{search}
	if reader != nil {
		chain = append(chain, reader)
	}
	return &Agent{
		Name:      "indepth_researcher",
		Role:      "In-depth Researcher",
		Goal:      "Collect accurate facts, figures, examples and sources for every part of the {topic} presentation.",
		Backstory: "You are a meticulous researcher. You read the pages behind the search results and keep only what you can attribute to a recent source.",
		Tools:     chain,
		LLM:       llm,
	}
}

func NewPresentationWriter(llm LLMClient) *Agent {
	return &Agent{
		Name:      "writer",
		Role:      "Presentation Writer",
		Goal:      "Turn the research on {topic} into a slide-by-slide presentation outline an audience can follow.",
		Backstory: "You have written hundreds of conference talks and training decks. You keep slides short and put detail into speaker notes.",
		LLM:       llm,
	}
}

func NewPresentationEditor(llm LLMClient) *Agent {
	return &Agent{
		Name:      "editor",
		Role:      "Presentation Editor",
		Goal:      "Deliver a polished, consistent and accurate {topic} presentation in markdown.",
		Backstory: "You review decks before they go out. You fix structure, tighten wording and remove anything unsupported by the research.",
		LLM:       llm,
	}
}

// NewResearchCrew builds the two-task research crew. Its raw output is the research plan.
func NewResearchCrew(llm LLMClient, search, reader tools.Tool, sink TaskSink) *Crew {
	explorer := NewTopicExplorer(llm, search)
	researcher := NewInDepthResearcher(llm, search, reader)
	return &Crew{
		Name: "researchers",
		Sink: sink,
		Tasks: []Task{
			{
				Name: "topic_exploration_task",
				Description: "Explore the topic \"{topic}\". Identify the 6 to 10 subtopics a presentation on it should cover, " +
					"in a logical order from introduction to conclusion. For each, note why it matters and one recent source.",
				ExpectedOutput: "A markdown list of proposed slide titles, each with two or three bullet points and the source links you used.",
				Agent:          explorer,
				OutputFile:     SlidesFile,
			},
			{
				Name: "detailed_research_task",
				Description: "Using the proposed slides for \"{topic}\", research each slide in depth. Gather key facts, statistics, " +
					"definitions, concrete examples and current developments. Keep only information you can attribute to a source.",
				ExpectedOutput: "A markdown research plan with one section per slide containing detailed notes, examples and source links.",
				Agent:          researcher,
				OutputFile:     DepthFile,
			},
		},
	}
}

// NewWriterCrew builds the writer crew. It expects the inputs topic and plan.
func NewWriterCrew(llm LLMClient) *Crew {
	return &Crew{
		Name: "writers",
		Tasks: []Task{
			{
				Name: "presentation_writing_task",
				Description: "Write a presentation about \"{topic}\" based on this research plan:\n\n{plan}\n\n" +
					"Each slide gets a short heading, three to five concise bullet points and speaker notes. " +
					"Start with a title slide and an agenda; end with a summary and a references slide listing the sources.",
				ExpectedOutput: "A complete markdown presentation outline: a single # title, then one ## heading per slide with bullets and a 'Speaker notes:' paragraph.",
				Agent:          NewPresentationWriter(llm),
			},
			{
				Name: "presentation_editing_task",
				Description: "Review the presentation draft about \"{topic}\". Fix ordering, repetition and unclear wording, make bullet " +
					"lengths consistent and remove claims the research plan does not support. Keep the markdown structure.",
				ExpectedOutput: "The final markdown presentation only, without comments about the changes.",
				Agent:          NewPresentationEditor(llm),
			},
		},
	}
}
