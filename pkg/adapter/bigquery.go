package adapter

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/bubbly/pkg/model"
)

// BigQuery is an interface for exporting pipeline audit records
type BigQuery interface {
	// InsertRuns streams pipeline run rows into the given dataset/table
	InsertRuns(ctx context.Context, datasetID, tableID string, runs []*model.PipelineRun) error
}

type bigqueryClient struct {
	client *bigquery.Client
}

// NewBigQuery creates a new BigQuery client
func NewBigQuery(ctx context.Context, projectID string) (BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create BigQuery client")
	}

	return &bigqueryClient{client: client}, nil
}

// runRow is the flattened BigQuery representation of a PipelineRun
type runRow struct {
	RunID            string    `bigquery:"run_id"`
	ConversationID   string    `bigquery:"conversation_id"`
	CommentID        string    `bigquery:"comment_id"`
	CreatedAt        time.Time `bigquery:"created_at"`
	EmbeddingModel   string    `bigquery:"embedding_model"`
	AssignedBubbleID string    `bigquery:"assigned_bubble_id"`
	Similarity       float64   `bigquery:"similarity_to_assigned"`
	Threshold        float64   `bigquery:"threshold"`
	CreatedNewBubble bool      `bigquery:"created_new_bubble"`
	LabelerMode      string    `bigquery:"labeler_mode"`
}

func (bq *bigqueryClient) InsertRuns(ctx context.Context, datasetID, tableID string, runs []*model.PipelineRun) error {
	rows := make([]*runRow, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, &runRow{
			RunID:            string(run.ID),
			ConversationID:   string(run.ConversationID),
			CommentID:        string(run.CommentID),
			CreatedAt:        run.CreatedAt,
			EmbeddingModel:   run.EmbeddingModel,
			AssignedBubbleID: string(run.Decision.AssignedBubbleID),
			Similarity:       run.Decision.Similarity,
			Threshold:        run.Decision.Threshold,
			CreatedNewBubble: run.Decision.CreatedNewBubble,
			LabelerMode:      run.Labeler.Mode,
		})
	}

	inserter := bq.client.Dataset(datasetID).Table(tableID).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return goerr.Wrap(err, "failed to insert pipeline runs",
			goerr.Value("dataset", datasetID), goerr.Value("table", tableID))
	}

	return nil
}
