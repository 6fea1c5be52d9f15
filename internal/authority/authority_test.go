package authority

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neo-alexandria/neoalex/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	db, err := store.OpenDB(filepath.Join(t.TempDir(), "authority.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st, err := NewStore(db)
	require.NoError(t, err)
	return NewService(st)
}

func TestCleanLabel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  machine   learning  ", "machine learning"},
		{"ml;ai|py", "ml ai py"},
		{"a,b", "a b"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanLabel(tt.in), "input %q", tt.in)
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"history of science", "History of Science"},
		{"the art of war", "The Art of War"},
		{"a tale of two cities", "A Tale of Two Cities"},
		{"of mice and men", "Of Mice and Men"},
		{"an", "An"},
		{"iOS development", "iOS Development"},
		{"NASA missions", "NASA Missions"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, titleCase(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeCreator(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"doe, jane", "Jane Doe"},
		{"  SMITH,   JOHN  ", "John Smith"},
		{"alan turing", "Alan Turing"},
		{"IBM research", "IBM Research"},
		{"van der berg, anna", "Anna Van Der Berg"},
		{"NASA", "NASA"},
		{"doe,", "Doe"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCreator(tt.in), "input %q", tt.in)
	}
}

func TestNormalizeSubjectSynonyms(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	got, err := svc.NormalizeSubject(ctx, "ml")
	require.NoError(t, err)
	assert.Equal(t, "Machine Learning", got)

	got, err = svc.NormalizeSubject(ctx, "  AI  ")
	require.NoError(t, err)
	assert.Equal(t, "Artificial Intelligence", got)

	got, err = svc.NormalizeSubject(ctx, "K8S")
	require.NoError(t, err)
	assert.Equal(t, "Kubernetes", got)
}

func TestNormalizeSubjectVariantRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// First sighting title-cases and stores the raw as a variant.
	got, err := svc.NormalizeSubject(ctx, "deep learning")
	require.NoError(t, err)
	assert.Equal(t, "Deep Learning", got)

	// Any later casing resolves through the stored variant.
	got, err = svc.NormalizeSubject(ctx, "DEEP LEARNING")
	require.NoError(t, err)
	assert.Equal(t, "Deep Learning", got)

	count, err := svc.store.UsageCount(ctx, "Deep Learning")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNormalizeSubjectEmpty(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	got, err := svc.NormalizeSubject(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNormalizeSubjectsDeduplicates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	got, err := svc.NormalizeSubjects(ctx, []string{"ml", "machine learning", "py", ""})
	require.NoError(t, err)
	assert.Equal(t, []string{"Machine Learning", "Python"}, got)
}

func TestSuggestSubjectsOrdering(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// "Machine Learning" used three times, "Machine Vision" once.
	for i := 0; i < 3; i++ {
		_, err := svc.NormalizeSubject(ctx, "ml")
		require.NoError(t, err)
	}
	_, err := svc.NormalizeSubject(ctx, "machine vision")
	require.NoError(t, err)

	got, err := svc.SuggestSubjects(ctx, "machine")
	require.NoError(t, err)
	assert.Equal(t, []string{"Machine Learning", "Machine Vision"}, got)
}

func TestSuggestSubjectsIncludesBuiltins(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// "Kubernetes" was never recorded but the built-in table knows it.
	got, err := svc.SuggestSubjects(ctx, "kube")
	require.NoError(t, err)
	assert.Contains(t, got, "Kubernetes")

	// Abbreviation match also resolves to the canonical.
	got, err = svc.SuggestSubjects(ctx, "k8s")
	require.NoError(t, err)
	assert.Contains(t, got, "Kubernetes")
}

func TestSuggestSubjectsEmptyPrefix(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	got, err := svc.SuggestSubjects(ctx, "  ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClassifyText(t *testing.T) {
	tests := []struct {
		name  string
		title string
		tags  []string
		desc  string
		want  string
	}{
		{
			name:  "programming",
			title: "Introduction to Programming",
			tags:  []string{"software"},
			desc:  "Learn to write code with algorithms and data structures.",
			want:  "000",
		},
		{
			name:  "linguistics",
			title: "Grammar of the English Language",
			desc:  "Syntax and semantics for learners.",
			want:  "400",
		},
		{
			name:  "science",
			title: "Quantum Physics Primer",
			tags:  []string{"science"},
			desc:  "An experiment-driven tour of quantum mechanics.",
			want:  "500",
		},
		{
			name:  "history",
			title: "The Roman Empire",
			desc:  "Ancient history of a civilization.",
			want:  "900",
		},
		{
			name:  "year boost",
			title: "Europe in 1914",
			desc:  "The road to 1914 and what followed.",
			want:  "900",
		},
		{
			name: "nothing matches",
			title: "Untitled",
			desc:  "Miscellaneous notes.",
			want:  "000",
		},
		{
			name:  "tie resolves by precedence",
			title: "",
			desc:  "language science",
			want:  "400",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyText(tt.title, tt.tags, tt.desc))
		})
	}
}

func TestClassificationTree(t *testing.T) {
	tree := ClassificationTree()
	require.Len(t, tree, 4)

	codes := make([]string, len(tree))
	for i, n := range tree {
		codes[i] = n.Code
		assert.NotEmpty(t, n.Label)
		assert.NotEmpty(t, n.Children)
	}
	assert.Equal(t, []string{"000", "400", "500", "900"}, codes)
}
