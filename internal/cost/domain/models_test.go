package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	assert.Equal(t, "azure_service", AzureService{}.TableName())
	assert.Equal(t, "billing_period", BillingPeriod{}.TableName())
	assert.Equal(t, "service_cost", ServiceCost{}.TableName())
	assert.Equal(t, "daily_cost", DailyCost{}.TableName())
}

func TestParseID(t *testing.T) {
	id, err := ParseID("1234")
	assert.NoError(t, err)
	assert.EqualValues(t, 1234, id)

	_, err = ParseID("abc")
	assert.Error(t, err)
}
