package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-calendar-api/internal/models"
)

func TestExamDataset(t *testing.T) {
	exams := etsinfExams()[3:4]
	exams[0].Location = "Aula 2"
	data := ExamDataset(exams)

	require.Len(t, data.Rows, 1)
	row := data.Rows[0]
	assert.Equal(t, "2024-06-03", row["Date"])
	assert.Equal(t, "150", row["Duration (min)"])
	assert.Equal(t, "Redes de Computadores (RCO)", row["Subject"])
	assert.Equal(t, "Aula 2", row["Location"])
	assert.Len(t, data.Headers, 9)
}

func TestExamListTitle(t *testing.T) {
	assert.Equal(t, "Exams", ExamListTitle(nil))
	assert.Equal(t, "Exams - school: ETSINF; year: 1, 2", ExamListTitle(models.FilterSelection{
		models.FacetYear:   {"2", "1.0"},
		models.FacetSchool: {"ETSINF"},
	}))
}
