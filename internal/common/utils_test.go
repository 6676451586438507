package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"pm2.5", "pm10", "so2"}, SplitList(" pm2.5,pm10 , so2 "))
	assert.Equal(t, []string{"a"}, SplitList("a,,"))
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList(" , "))
}
