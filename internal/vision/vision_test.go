package vision

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/anthropic"
	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/pkg/anthropic/mocks"
)

func TestCompareImages_Similarity(t *testing.T) {
	ai := mocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.Messages) == 1 &&
			len(req.Messages[0].Images) == 3 &&
			req.Messages[0].Images[2] == "https://img/aerial" &&
			req.Model == "vision-model"
	})).Return(mocks.TextResponse("```json\n{\"similarity\": 0.82}\n```"), nil)

	c := New(ai, WithModel("vision-model"))
	cmp, err := c.CompareImages(context.Background(), []string{"p1", "p2"}, "https://img/aerial", InstructSimilarity)
	require.NoError(t, err)

	assert.Equal(t, InstructSimilarity, cmp.Instruction)
	assert.InDelta(t, 0.82, cmp.Similarity, 1e-9)
	assert.Equal(t, int64(100), cmp.Usage.InputTokens)
}

func TestCompareImages_Pool(t *testing.T) {
	ai := mocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(mocks.TextResponse(`Here: {"photo": {"pool": "rectangular"}, "imagery": {"pool": "none"}}`), nil)

	cmp, err := New(ai).CompareImages(context.Background(), []string{"p1"}, "aerial", InstructPool)
	require.NoError(t, err)
	assert.Equal(t, PoolRectangular, cmp.Photo.Pool)
	assert.True(t, cmp.Photo.Pool.Present())
	assert.Equal(t, PoolAbsent, cmp.Imagery.Pool)
	assert.False(t, cmp.Imagery.Pool.Present())
}

func TestCompareImages_RoofUnknownNormalized(t *testing.T) {
	ai := mocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(mocks.TextResponse(`{"photo": {"roof_color": "red", "roof_shape": "unknown"}, "imagery": {"roof_color": "red", "roof_shape": "hip"}}`), nil)

	cmp, err := New(ai).CompareImages(context.Background(), []string{"p1"}, "aerial", InstructRoof)
	require.NoError(t, err)
	assert.Equal(t, "red", cmp.Photo.RoofColor)
	assert.Empty(t, cmp.Photo.RoofShape)
	assert.Equal(t, "hip", cmp.Imagery.RoofShape)
}

func TestCompareImages_RoofOtherNormalized(t *testing.T) {
	ai := mocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(mocks.TextResponse(`{"photo": {"roof_color": "other", "roof_shape": "other"}, "imagery": {"roof_color": "other", "roof_shape": "gable"}}`), nil)

	cmp, err := New(ai).CompareImages(context.Background(), []string{"p1"}, "aerial", InstructRoof)
	require.NoError(t, err)
	assert.Empty(t, cmp.Photo.RoofColor)
	assert.Empty(t, cmp.Photo.RoofShape)
	assert.Empty(t, cmp.Imagery.RoofColor)
	assert.Equal(t, "gable", cmp.Imagery.RoofShape)
}

func TestCompareImages_Terrain(t *testing.T) {
	ai := mocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(mocks.TextResponse(`{"photo": {"terrain_shape": "rectangular", "terrace": true}, "imagery": {"terrain_shape": "irregular"}}`), nil)

	cmp, err := New(ai).CompareImages(context.Background(), []string{"p1"}, "aerial", InstructTerrain)
	require.NoError(t, err)
	require.NotNil(t, cmp.Photo.Terrace)
	assert.True(t, *cmp.Photo.Terrace)
	assert.Nil(t, cmp.Imagery.Terrace)
	assert.Equal(t, "irregular", cmp.Imagery.TerrainShape)
}

func TestCompareImages_SchemaViolation(t *testing.T) {
	ai := mocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(mocks.TextResponse(`{"similarity": 7}`), nil)

	_, err := New(ai).CompareImages(context.Background(), []string{"p1"}, "aerial", InstructSimilarity)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
}

func TestCompareImages_PoolEnumViolation(t *testing.T) {
	ai := mocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(mocks.TextResponse(`{"photo": {"pool": "kidney"}, "imagery": {"pool": "none"}}`), nil)

	_, err := New(ai).CompareImages(context.Background(), []string{"p1"}, "aerial", InstructPool)
	require.Error(t, err)
}

func TestCompareImages_NotJSON(t *testing.T) {
	ai := mocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(mocks.TextResponse("I cannot tell."), nil)

	_, err := New(ai).CompareImages(context.Background(), []string{"p1"}, "aerial", InstructSimilarity)
	require.Error(t, err)
}

func TestCompareImages_APIError(t *testing.T) {
	ai := mocks.NewMockClient(t)
	ai.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("overloaded"))

	_, err := New(ai).CompareImages(context.Background(), []string{"p1"}, "aerial", InstructRoof)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vision: compare roof")
}

func TestCompareImages_RejectsBadInput(t *testing.T) {
	c := New(&mocks.MockClient{})

	_, err := c.CompareImages(context.Background(), nil, "aerial", InstructSimilarity)
	require.Error(t, err)

	_, err = c.CompareImages(context.Background(), []string{"p1"}, "", InstructSimilarity)
	require.Error(t, err)

	_, err = c.CompareImages(context.Background(), []string{"p1"}, "aerial", Instruction("color"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown instruction")
}
