package sql_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	model "github.com/tigerroll/capture/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/capture/pkg/batch/core/domain/repository"
	sqlrepo "github.com/tigerroll/capture/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

func setupMock(t *testing.T) (sqlmock.Sqlmock, *sqlrepo.GORMRunRepository) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Discard,
	})
	require.NoError(t, err)
	return mock, sqlrepo.NewGORMRunRepository(gormDB)
}

func TestSaveRun(t *testing.T) {
	mock, repo := setupMock(t)
	run := model.NewPipelineRun("capture", "obs.ms", "0123456789abcdef")

	mock.ExpectExec("INSERT INTO `capture_run`").WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.SaveRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunWrapsDriverErrors(t *testing.T) {
	mock, repo := setupMock(t)
	run := model.NewPipelineRun("capture", "obs.ms", "fp")

	mock.ExpectExec("INSERT INTO `capture_run`").WillReturnError(errors.New("disk full"))

	err := repo.SaveRun(context.Background(), run)
	require.Error(t, err)
	assert.Equal(t, exception.KindPersistence, exception.KindOf(err))
}

func TestUpdateRunVersioning(t *testing.T) {
	mock, repo := setupMock(t)
	run := model.NewPipelineRun("capture", "obs.ms", "fp")

	mock.ExpectExec("UPDATE `capture_run` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateRun(context.Background(), run))
	assert.Equal(t, 1, run.Version)

	mock.ExpectExec("UPDATE `capture_run` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateRun(context.Background(), run)
	require.Error(t, err)
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.Equal(t, 1, run.Version, "version is rolled back on conflict")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRunByID(t *testing.T) {
	mock, repo := setupMock(t)
	now := time.Now()

	runRows := sqlmock.NewRows([]string{
		"id", "job_name", "dataset", "config_fingerprint", "start_time", "end_time",
		"status", "exit_status", "failures", "execution_context", "version", "create_time", "last_updated",
	}).AddRow("r1", "capture", "obs.ms", "fp", now, nil, "COMPLETED", "COMPLETED", `["boom"]`, `{"split_file":"3C286split.ms"}`, 3, now, now)
	mock.ExpectQuery("SELECT \\* FROM `capture_run`").WillReturnRows(runRows)

	stageRows := sqlmock.NewRows([]string{
		"id", "run_id", "stage_name", "start_time", "end_time", "status", "exit_status",
		"failures", "warnings", "execution_context", "last_updated", "version",
	}).AddRow("s1", "r1", "calibration", now, now, "COMPLETED", "NO_OP", "[]", `["no phase fields; skipping fluxscale"]`, "{}", now, 1)
	mock.ExpectQuery("SELECT \\* FROM `capture_stage_execution`").WillReturnRows(stageRows)

	run, err := repo.FindRunByID(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, model.FailureList{"boom"}, run.Failures)
	assert.Equal(t, "3C286split.ms", run.ExecutionContext.GetString("split_file"))
	require.Len(t, run.StageExecutions, 1)
	assert.Equal(t, model.ExitStatusNoOp, run.StageExecutions[0].ExitStatus)
	assert.Len(t, run.StageExecutions[0].Warnings, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRunByIDNotFound(t *testing.T) {
	mock, repo := setupMock(t)
	mock.ExpectQuery("SELECT \\* FROM `capture_run`").WillReturnError(gorm.ErrRecordNotFound)

	_, err := repo.FindRunByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrRunNotFound)
}

func TestMarkArtifactDeleted(t *testing.T) {
	mock, repo := setupMock(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "run_id", "name", "kind", "stage", "generation", "created_at", "deleted_at"}).
		AddRow("a1", "r1", "obs.ms.K1", "caltable", "calibration", -1, now, nil)
	mock.ExpectQuery("SELECT \\* FROM `capture_artifact`").WillReturnRows(rows)
	mock.ExpectExec("UPDATE `capture_artifact` SET `deleted_at`").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkArtifactDeleted(context.Background(), "r1", "obs.ms.K1"))

	mock.ExpectQuery("SELECT \\* FROM `capture_artifact`").WillReturnError(gorm.ErrRecordNotFound)
	assert.ErrorIs(t, repo.MarkArtifactDeleted(context.Background(), "r1", "gone"), repository.ErrArtifactNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationsEmbedded(t *testing.T) {
	for _, typ := range []string{"sqlite", "postgres", "mysql"} {
		sub, err := sqlrepo.MigrationsFS(typ)
		require.NoError(t, err)
		f, err := sub.Open("000001_create_ledger.up.sql")
		require.NoError(t, err, typ)
		f.Close()
	}
}
