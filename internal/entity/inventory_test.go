package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/datatypes"
)

func TestAvailableToSell(t *testing.T) {
	tests := []struct {
		name     string
		item     InventoryItem
		channel  string
		expected int64
	}{
		{
			name:     "без ограничений доступен весь свободный остаток",
			item:     InventoryItem{OnHand: 10, Reserved: 0, SafetyStock: 0},
			channel:  "web",
			expected: 10,
		},
		{
			name:     "резерв уменьшает доступное",
			item:     InventoryItem{OnHand: 10, Reserved: 4, SafetyStock: 0},
			channel:  "web",
			expected: 6,
		},
		{
			name:     "страховой запас выше свободного остатка",
			item:     InventoryItem{OnHand: 10, Reserved: 8, SafetyStock: 5},
			channel:  "web",
			expected: 0,
		},
		{
			name: "буфер канала вычитается только для своего канала",
			item: InventoryItem{
				OnHand:         20,
				Reserved:       5,
				ChannelBuffers: datatypes.JSONMap{"marketplace": float64(10)},
			},
			channel:  "marketplace",
			expected: 5,
		},
		{
			name: "другой канал буфером не затронут",
			item: InventoryItem{
				OnHand:         20,
				Reserved:       5,
				ChannelBuffers: datatypes.JSONMap{"marketplace": float64(10)},
			},
			channel:  "web",
			expected: 15,
		},
		{
			name: "результат не бывает отрицательным",
			item: InventoryItem{
				OnHand:         3,
				Reserved:       1,
				SafetyStock:    0,
				ChannelBuffers: datatypes.JSONMap{"web": float64(100)},
			},
			channel:  "web",
			expected: 0,
		},
		{
			name:     "недобор до страхового запаса вычитается",
			item:     InventoryItem{OnHand: 10, Reserved: 6, SafetyStock: 6},
			channel:  "web",
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.item.AvailableToSell(tt.channel))
		})
	}
}

func TestChannelBuffer(t *testing.T) {
	item := InventoryItem{
		ChannelBuffers: datatypes.JSONMap{
			"web":   float64(3),
			"pos":   int64(5),
			"плохо": "не число",
		},
	}

	assert.Equal(t, int64(3), item.ChannelBuffer("web"))
	assert.Equal(t, int64(5), item.ChannelBuffer("pos"))
	assert.Equal(t, int64(0), item.ChannelBuffer("плохо"))
	assert.Equal(t, int64(0), item.ChannelBuffer("неизвестный"))
}

func TestJobStageTransitions(t *testing.T) {
	job := AutomationJob{Stage: JobStageReceived}
	assert.Equal(t, JobStageValidated, job.NextStage())

	job.Stage = JobStagePrinted
	assert.Equal(t, JobStageComplete, job.NextStage())

	job.Stage = JobStageComplete
	assert.True(t, job.IsTerminal())

	job.Stage = JobStageFailed
	assert.True(t, job.IsTerminal())

	job.Stage = JobStageCancelled
	assert.True(t, job.IsTerminal())

	job.Stage = JobStageSynced
	assert.False(t, job.IsTerminal())
}
