package promptbuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"spectrail/internal/model"
)

func TestBuildPlanMessages_InterpolatesTaskAndRepo(t *testing.T) {
	task := model.Task{Title: "Add login"}
	project := model.Project{RepoPath: "/repo"}
	system, user := BuildPlanMessages(task, project)

	require.Contains(t, system, "# Implementation Plan")
	require.Contains(t, user, "Add login")
	require.Contains(t, user, "/repo")
}

func TestBuildVerifyMessages_NoPlanYet(t *testing.T) {
	res := BuildVerifyMessages(VerifyInputs{Task: model.Task{Title: "X"}, GitStatus: "clean", GitDiff: ""})
	require.Contains(t, res.UserMessage, "No implementation plan provided")
	require.False(t, res.Truncated)
}

func TestBuildVerifyMessages_DiffTruncation(t *testing.T) {
	bigDiff := strings.Repeat("a", verifyDiffCap+1000)
	res := BuildVerifyMessages(VerifyInputs{Task: model.Task{Title: "X"}, GitDiff: bigDiff})
	require.True(t, res.Truncated)
}

func TestBuildVerifyMessages_StagedLabel(t *testing.T) {
	res := BuildVerifyMessages(VerifyInputs{Task: model.Task{Title: "X"}, Staged: true, GitDiff: "diff"})
	require.Contains(t, res.UserMessage, "Staged Changes")
}
