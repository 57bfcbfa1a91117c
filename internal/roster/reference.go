package roster

import "fmt"

// Reference returns the stock fourteen-worker studio hierarchy: a producer,
// a director, three leads and nine team members.
func Reference() *Roster {
	teams := []struct {
		lead   string
		role   Role
		member Role
		prefix string
		size   int
	}{
		{"lead_design", RoleLeadDesign, RoleDesigner, "designer", 2},
		{"lead_prog", RoleLeadProg, RoleProgrammer, "programmer", 5},
		{"lead_qa", RoleLeadQA, RoleTester, "tester", 2},
	}
	workers := []WorkerConfig{
		{Name: "producer", Role: RoleProducer, PromptFile: promptPath("producer")},
		{Name: "director", Role: RoleDirector, Superior: "producer", PromptFile: promptPath("director")},
	}
	for _, team := range teams {
		workers = append(workers, WorkerConfig{
			Name:       team.lead,
			Role:       team.role,
			Superior:   "director",
			PromptFile: promptPath(team.lead),
		})
	}
	for _, team := range teams {
		for i := 1; i <= team.size; i++ {
			name := fmt.Sprintf("%s_%d", team.prefix, i)
			workers = append(workers, WorkerConfig{
				Name:           name,
				Role:           team.member,
				Superior:       team.lead,
				PromptFile:     promptPath(string(team.member)),
				PermissionMode: PermissionAcceptEdits,
			})
		}
	}
	r, err := New(workers)
	if err != nil {
		panic(fmt.Sprintf("roster: reference hierarchy invalid: %v", err))
	}
	return r
}

func promptPath(name string) string {
	return ".layers/prompts/" + name + ".md"
}
