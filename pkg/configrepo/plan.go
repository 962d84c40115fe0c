package configrepo

import (
	"github.com/Promptonauts/configrepo/pkg/contract"
	"github.com/Promptonauts/configrepo/pkg/models"
)

// PlanFor derives the execution plan for a job of an accepted revision.
// The job is expected to have passed validation.
func PlanFor(rev *Revision, stage models.StageIdentifier, job *contract.Job) *models.JobPlan {
	plan := &models.JobPlan{
		Identifier:  models.JobIdentifier{StageIdentifier: stage, JobName: job.Name},
		TimeoutMins: job.Timeout,
		Tasks:       len(job.Tasks),
	}
	if rev != nil {
		plan.ConfigSource = rev.Source
		plan.Revision = rev.ID
	}
	if len(job.Resources) > 0 {
		plan.Resources = append([]string(nil), job.Resources...)
	}
	for _, v := range job.EnvironmentVariables {
		if v.EncryptedValue != "" {
			if plan.SecureEnv == nil {
				plan.SecureEnv = make(map[string]string)
			}
			plan.SecureEnv[v.Name] = v.EncryptedValue
			continue
		}
		if plan.Environment == nil {
			plan.Environment = make(map[string]string)
		}
		plan.Environment[v.Name] = v.Value
	}
	for _, a := range job.Artifacts {
		plan.Artifacts = append(plan.Artifacts, models.PlanArtifact{
			Source:      a.Source,
			Destination: a.Destination,
			Type:        string(a.Type),
		})
	}
	for _, p := range job.PropertyGenerators {
		plan.Properties = append(plan.Properties, models.PlanProperty{Name: p.Name, Source: p.Source, XPath: p.XPath})
	}
	return plan
}
