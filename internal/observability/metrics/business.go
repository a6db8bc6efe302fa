package metrics

import "time"

// UpdateLessonInventory updates the lesson inventory gauges.
// These gauges should be refreshed periodically to reflect the current
// state of the lesson store.
func UpdateLessonInventory(total, unused int) {
	LessonsTotal.Set(float64(total))
	LessonsUnused.Set(float64(unused))
}

// UpdateLessonsByCategory updates the per-category lesson count.
func UpdateLessonsByCategory(category string, count int) {
	LessonsByCategory.WithLabelValues(category).Set(float64(count))
}

// RecordCycleReset records a duplicate-avoidance cycle reset.
func RecordCycleReset() {
	CycleResetsTotal.Inc()
}

// RecordDBQuery records the duration of a database query operation.
// Operation should describe the query type (e.g., "select_lessons", "insert_attempt").
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}
