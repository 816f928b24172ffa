package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/classlight/quiz-service/internal/models"
	"github.com/classlight/quiz-service/internal/repositories"
)

// AnalyticsService is a read-only reducer over completed attempts. It never
// mutates attempt records.
type AnalyticsService interface {
	GetQuizAnalytics(ctx context.Context, quizID string, caller models.Identity) (*QuizAnalytics, error)
	ExportQuizResults(ctx context.Context, quizID string, caller models.Identity) ([]byte, error)
}

// ===== DATA STRUCTURES =====

// scoreBucketLabels are the fixed histogram ranges, inclusive on both ends.
var scoreBucketLabels = [5]string{"0-20", "21-40", "41-60", "61-80", "81-100"}

type ScoreBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

type QuestionStat struct {
	QuestionID  string              `json:"question_id"`
	Text        string              `json:"text"`
	Type        models.QuestionType `json:"type"`
	Correct     int                 `json:"correct"`
	Incorrect   int                 `json:"incorrect"`
	Total       int                 `json:"total"`
	SuccessRate float64             `json:"success_rate"` // percent
}

type QuizAnalytics struct {
	QuizID             string         `json:"quiz_id"`
	Title              string         `json:"title"`
	CompletedAttempts  int            `json:"completed_attempts"`
	AverageScore       float64        `json:"average_score"`
	HighestScore       int            `json:"highest_score"`
	LowestScore        int            `json:"lowest_score"`
	AverageTimeMinutes int            `json:"average_time_minutes"`
	ScoreDistribution  []ScoreBucket  `json:"score_distribution"`
	QuestionStats      []QuestionStat `json:"question_stats"`
	GeneratedAt        time.Time      `json:"generated_at"`
}

type analyticsService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewAnalyticsService(repo repositories.Repository, logger *slog.Logger) AnalyticsService {
	return &analyticsService{
		repo:   repo,
		logger: logger,
	}
}

func (s *analyticsService) GetQuizAnalytics(ctx context.Context, quizID string, caller models.Identity) (*QuizAnalytics, error) {
	if !caller.CanGrade() {
		return nil, NewPermissionError(caller.ID, quizID, "quiz", "view_analytics", "insufficient permissions")
	}

	quiz, err := s.repo.Quiz().GetByID(ctx, quizID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuizNotFound
		}
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}

	completed := true
	attempts, err := s.repo.Attempt().List(ctx, repositories.AttemptFilters{
		QuizID:    &quizID,
		Completed: &completed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	analytics := &QuizAnalytics{
		QuizID:            quizID,
		Title:             quiz.Title,
		CompletedAttempts: len(attempts),
		ScoreDistribution: scoreDistribution(attempts),
		QuestionStats:     questionStats(quiz, attempts),
		GeneratedAt:       time.Now(),
	}

	// Every division below guards the zero-attempts case by yielding zero.
	if len(attempts) > 0 {
		var sum, totalMinutes float64
		analytics.HighestScore = 0
		analytics.LowestScore = 100
		for _, attempt := range attempts {
			score := 0
			if attempt.Score != nil {
				score = *attempt.Score
			}
			sum += float64(score)
			if score > analytics.HighestScore {
				analytics.HighestScore = score
			}
			if score < analytics.LowestScore {
				analytics.LowestScore = score
			}
			if attempt.EndTime != nil {
				totalMinutes += attempt.EndTime.Sub(attempt.StartTime).Minutes()
			}
		}
		analytics.AverageScore = math.Round(sum/float64(len(attempts))*10) / 10
		analytics.AverageTimeMinutes = int(math.Round(totalMinutes / float64(len(attempts))))
	}

	return analytics, nil
}

// scoreDistribution buckets completed attempts into the fixed five ranges.
func scoreDistribution(attempts []*models.Attempt) []ScoreBucket {
	counts := [5]int{}
	for _, attempt := range attempts {
		score := 0
		if attempt.Score != nil {
			score = *attempt.Score
		}
		switch {
		case score <= 20:
			counts[0]++
		case score <= 40:
			counts[1]++
		case score <= 60:
			counts[2]++
		case score <= 80:
			counts[3]++
		default:
			counts[4]++
		}
	}

	buckets := make([]ScoreBucket, len(scoreBucketLabels))
	for i, label := range scoreBucketLabels {
		buckets[i] = ScoreBucket{Range: label, Count: counts[i]}
	}
	return buckets
}

func questionStats(quiz *models.Quiz, attempts []*models.Attempt) []QuestionStat {
	stats := make([]QuestionStat, len(quiz.Questions))
	for i, question := range quiz.Questions {
		stat := QuestionStat{
			QuestionID: question.ID,
			Text:       question.Text,
			Type:       question.Type,
		}
		for _, attempt := range attempts {
			for _, answer := range attempt.Answers {
				if answer.QuestionID != question.ID {
					continue
				}
				stat.Total++
				if answer.IsCorrect != nil && *answer.IsCorrect {
					stat.Correct++
				} else {
					stat.Incorrect++
				}
			}
		}
		if stat.Total > 0 {
			stat.SuccessRate = math.Round(float64(stat.Correct) / float64(stat.Total) * 100)
		}
		stats[i] = stat
	}
	return stats
}

// ===== EXPORT =====

// ExportQuizResults renders the quiz summary and per-attempt results as an
// Excel workbook.
func (s *analyticsService) ExportQuizResults(ctx context.Context, quizID string, caller models.Identity) ([]byte, error) {
	analytics, err := s.GetQuizAnalytics(ctx, quizID, caller)
	if err != nil {
		return nil, err
	}

	completed := true
	attempts, err := s.repo.Attempt().List(ctx, repositories.AttemptFilters{
		QuizID:    &quizID,
		Completed: &completed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	f := excelize.NewFile()
	sheetName := "Results"

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"Attempt ID", "Student ID", "Started At", "Completed At", "Score"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIndex, attempt := range attempts {
		score := 0
		if attempt.Score != nil {
			score = *attempt.Score
		}
		completedAt := ""
		if attempt.EndTime != nil {
			completedAt = attempt.EndTime.Format(time.RFC3339)
		}
		row := []interface{}{
			attempt.ID,
			attempt.StudentID,
			attempt.StartTime.Format(time.RFC3339),
			completedAt,
			score,
		}
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	// Summary sheet with the aggregate figures and question breakdown.
	summarySheet := "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	summaryRows := [][]interface{}{
		{"Quiz", analytics.Title},
		{"Completed attempts", analytics.CompletedAttempts},
		{"Average score", analytics.AverageScore},
		{"Highest score", analytics.HighestScore},
		{"Lowest score", analytics.LowestScore},
		{"Average time (minutes)", analytics.AverageTimeMinutes},
	}
	for rowIndex, row := range summaryRows {
		for colIndex, value := range row {
			cell := fmt.Sprintf("%c%d", 'A'+colIndex, rowIndex+1)
			f.SetCellValue(summarySheet, cell, value)
		}
	}
	statsStart := len(summaryRows) + 2
	f.SetCellValue(summarySheet, fmt.Sprintf("A%d", statsStart), "Question")
	f.SetCellValue(summarySheet, fmt.Sprintf("B%d", statsStart), "Correct")
	f.SetCellValue(summarySheet, fmt.Sprintf("C%d", statsStart), "Incorrect")
	f.SetCellValue(summarySheet, fmt.Sprintf("D%d", statsStart), "Success %")
	for i, stat := range analytics.QuestionStats {
		row := statsStart + 1 + i
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), stat.Text)
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", row), stat.Correct)
		f.SetCellValue(summarySheet, fmt.Sprintf("C%d", row), stat.Incorrect)
		f.SetCellValue(summarySheet, fmt.Sprintf("D%d", row), stat.SuccessRate)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.Info("Exported quiz results",
		"quiz_id", quizID,
		"attempts", len(attempts))
	return buf.Bytes(), nil
}
