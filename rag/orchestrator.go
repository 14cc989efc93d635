package rag

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/fabfab/papermind/archive"
	"github.com/fabfab/papermind/llm"
)

const (
	// ReferenceTag marks archive documents whose metadata must be cited
	// inline when they back an answer.
	ReferenceTag = "Referência"

	defaultMaxSources = 5
	excerptLimit      = 500

	apologyAnswer = "Desculpe, não foi possível gerar uma resposta para a sua pergunta. Por favor, tente novamente mais tarde."
)

// ContextRetriever provides summarized context plus candidate sources for a
// question.
type ContextRetriever interface {
	Context(ctx context.Context, question string, maxSources int) (ContextResponse, error)
}

// DocumentStore fetches per-source metadata and full text from the archive.
type DocumentStore interface {
	GetDocument(ctx context.Context, id int) (archive.Document, error)
	GetContent(ctx context.Context, id int) (string, error)
}

// TagResolver maps numeric tag ids to names.
type TagResolver interface {
	Resolve(ctx context.Context, ids []int) ([]string, error)
}

// CorrespondentResolver maps a numeric correspondent id to its name.
type CorrespondentResolver interface {
	Resolve(ctx context.Context, id int) (string, error)
}

type Orchestrator struct {
	retriever      ContextRetriever
	docs           DocumentStore
	tags           TagResolver
	correspondents CorrespondentResolver
	provider       llm.Provider
	logger         *log.Logger
	maxSources     int
}

func NewOrchestrator(retriever ContextRetriever, docs DocumentStore, tags TagResolver, correspondents CorrespondentResolver, provider llm.Provider, logger *log.Logger, maxSources int) *Orchestrator {
	if logger == nil {
		logger = log.Default()
	}
	if maxSources <= 0 {
		maxSources = defaultMaxSources
	}
	return &Orchestrator{
		retriever:      retriever,
		docs:           docs,
		tags:           tags,
		correspondents: correspondents,
		provider:       provider,
		logger:         logger,
		maxSources:     maxSources,
	}
}

// AskQuestion runs one single-pass question through the pipeline: retrieve,
// enrich sources, fetch content, compose the prompt, generate. Only the
// retrieval step is fatal; everything after degrades per source, and a
// failed generation yields a fixed apology with sources intact.
func (o *Orchestrator) AskQuestion(ctx context.Context, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, fmt.Errorf("question cannot be empty")
	}

	resp, err := o.retriever.Context(ctx, question, o.maxSources)
	if err != nil {
		o.logger.Printf("context retrieval failed: %v", err)
		return Answer{}, fmt.Errorf("failed to retrieve context for the question")
	}

	metas := o.fetchMetadata(ctx, resp.Sources)
	contents := o.fetchContents(ctx, resp.Sources)

	refs := referenceDocuments(resp.Sources, metas, contents)
	enriched := composeContext(resp.Context, contents)
	finalPrompt := composePrompt(question, enriched, metas, refs)

	answer, err := o.provider.GenerateText(ctx, finalPrompt, llm.GenerateOptions{})
	if err != nil {
		o.logger.Printf("answer generation failed: %v", err)
		answer = apologyAnswer
	}

	return Answer{Answer: strings.TrimSpace(answer), Sources: resp.Sources}, nil
}

type sourceMeta struct {
	title         string
	tags          []string
	correspondent string
	resolved      bool
	doc           archive.Document
}

// fetchMetadata enriches every source concurrently and settles the whole
// batch; an individual failure only loses that source's enrichment.
func (o *Orchestrator) fetchMetadata(ctx context.Context, sources []Source) []sourceMeta {
	metas := make([]sourceMeta, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		metas[i] = sourceMeta{title: src.Title}
		if src.DocumentID == 0 {
			continue
		}

		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()

			doc, err := o.docs.GetDocument(ctx, src.DocumentID)
			if err != nil {
				o.logger.Printf("metadata fetch for source %d failed: %v", src.DocumentID, err)
				return
			}

			names, err := o.tags.Resolve(ctx, doc.Tags)
			if err != nil {
				o.logger.Printf("tag resolution for source %d failed: %v", src.DocumentID, err)
				names = nil
			}

			correspondent := ""
			if doc.Correspondent != 0 {
				correspondent, err = o.correspondents.Resolve(ctx, doc.Correspondent)
				if err != nil {
					o.logger.Printf("correspondent resolution for source %d failed: %v", src.DocumentID, err)
					correspondent = ""
				}
			}

			meta := sourceMeta{title: doc.Title, tags: names, correspondent: correspondent, resolved: true, doc: doc}
			if meta.title == "" {
				meta.title = src.Title
			}
			metas[i] = meta
		}(i, src)
	}
	wg.Wait()

	return metas
}

// fetchContents pulls full document text concurrently; a failed fetch
// contributes an empty string.
func (o *Orchestrator) fetchContents(ctx context.Context, sources []Source) []string {
	contents := make([]string, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		if src.DocumentID == 0 {
			continue
		}

		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()

			content, err := o.docs.GetContent(ctx, src.DocumentID)
			if err != nil {
				o.logger.Printf("content fetch for source %d failed: %v", src.DocumentID, err)
				return
			}
			contents[i] = content
		}(i, src)
	}
	wg.Wait()

	return contents
}

func referenceDocuments(sources []Source, metas []sourceMeta, contents []string) []ReferenceDocument {
	var refs []ReferenceDocument
	for i, meta := range metas {
		if !meta.resolved || !containsTag(meta.tags, ReferenceTag) {
			continue
		}
		refs = append(refs, ReferenceDocument{
			ID:            sources[i].DocumentID,
			Title:         meta.title,
			Created:       meta.doc.Created,
			Correspondent: meta.correspondent,
			Tags:          meta.tags,
			Excerpt:       excerpt(contents[i]),
		})
	}
	return refs
}

// composeContext appends the successful full-text fetches, in source order,
// after the retrieval service's summarized context.
func composeContext(summary string, contents []string) string {
	parts := make([]string, 0, len(contents)+1)
	if strings.TrimSpace(summary) != "" {
		parts = append(parts, strings.TrimSpace(summary))
	}
	for _, content := range contents {
		if strings.TrimSpace(content) != "" {
			parts = append(parts, strings.TrimSpace(content))
		}
	}
	return strings.Join(parts, "\n\n")
}

func composePrompt(question, context string, metas []sourceMeta, refs []ReferenceDocument) string {
	var sb strings.Builder

	sb.WriteString("Answer the question below using only the supplied context.\n\n")
	sb.WriteString("Question:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(context)

	if len(metas) > 0 {
		sb.WriteString("\n\nSource information:\n")
		for _, meta := range metas {
			sb.WriteString("- ")
			sb.WriteString(meta.title)
			if len(meta.tags) > 0 {
				sb.WriteString(" (tags: ")
				sb.WriteString(strings.Join(meta.tags, ", "))
				sb.WriteString(")")
			}
			sb.WriteString("\n")
		}
	}

	if len(refs) > 0 {
		sb.WriteString("\nReference documents:\n")
		for _, ref := range refs {
			fmt.Fprintf(&sb, "- [%d] %s", ref.ID, ref.Title)
			if ref.Created != "" {
				fmt.Fprintf(&sb, " (created %s)", ref.Created)
			}
			if ref.Correspondent != "" {
				fmt.Fprintf(&sb, " from %s", ref.Correspondent)
			}
			if len(ref.Tags) > 0 {
				fmt.Fprintf(&sb, " tags: %s", strings.Join(ref.Tags, ", "))
			}
			if ref.Excerpt != "" {
				fmt.Fprintf(&sb, "\n  %s", ref.Excerpt)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\nWhen your answer draws on a reference document, cite it inline using the exact format [REF:<id>], e.g. [REF:42]. Cite every reference document you use.")
	} else {
		sb.WriteString("\nDo not reference or cite the source documents in your answer.")
	}

	return sb.String()
}

func containsTag(tags []string, name string) bool {
	for _, tag := range tags {
		if tag == name {
			return true
		}
	}
	return false
}

// excerpt bounds content to excerptLimit runes, ellipsis included.
func excerpt(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= excerptLimit {
		return content
	}
	return string(runes[:excerptLimit-3]) + "..."
}
