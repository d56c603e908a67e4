package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLevelTable_IsValid(t *testing.T) {
	assert.True(t, DefaultLevelTable().IsValid())
}

func TestLevelTable_IsValid_RejectsBadTables(t *testing.T) {
	assert.False(t, LevelTable{}.IsValid(), "empty table")
	assert.False(t, LevelTable{Thresholds: []LevelThreshold{
		{Level: 1, MinXP: 50},
	}}.IsValid(), "first threshold must be 0")
	assert.False(t, LevelTable{Thresholds: []LevelThreshold{
		{Level: 1, MinXP: 0},
		{Level: 2, MinXP: 100},
		{Level: 3, MinXP: 100},
	}}.IsValid(), "thresholds must strictly increase")
}

func TestLevelTable_LevelFor(t *testing.T) {
	table := DefaultLevelTable()

	assert.Equal(t, GameLevel(1), table.LevelFor(0))
	assert.Equal(t, GameLevel(1), table.LevelFor(99))
	assert.Equal(t, GameLevel(2), table.LevelFor(100), "boundary XP reaches the level")
	assert.Equal(t, GameLevel(10), table.LevelFor(5000))
	assert.Equal(t, GameLevel(10), table.LevelFor(1_000_000), "scale is closed at the top")
	assert.Equal(t, GameLevel(1), table.LevelFor(-5), "negative XP reads as zero")
}

func TestLevelTable_DetectLevelUp(t *testing.T) {
	table := DefaultLevelTable()

	oldLevel, newLevel, leveled := table.DetectLevelUp(90, 120)
	assert.True(t, leveled)
	assert.Equal(t, GameLevel(1), oldLevel)
	assert.Equal(t, GameLevel(2), newLevel)

	_, _, leveled = table.DetectLevelUp(100, 180)
	assert.False(t, leveled, "growth inside one level is not a level-up")

	// Crossing two boundaries at once is a single level-up notification.
	oldLevel, newLevel, leveled = table.DetectLevelUp(0, 300)
	assert.True(t, leveled)
	assert.Equal(t, GameLevel(1), oldLevel)
	assert.Equal(t, GameLevel(3), newLevel)
}

func TestLevelTable_TitleFor(t *testing.T) {
	table := DefaultLevelTable()
	assert.Equal(t, "Seedling", table.TitleFor(1))
	assert.Equal(t, "Legend", table.TitleFor(10))
	assert.Equal(t, "", table.TitleFor(42))
}
