package a2a

import (
	"github.com/spf13/viper"
)

// AgentSkill defines a specific skill or capability offered by an agent
type AgentSkill struct {
	// ID is the unique identifier for the skill
	ID string `json:"id"`
	// Name is the human-readable name of the skill
	Name string `json:"name"`
	// Description is an optional description of the skill
	Description string `json:"description,omitempty"`
}

/*
AgentCard conveys the capabilities and metadata exposed by an agent for
discovery.  It is a pure value object: loaded once at startup and never
mutated afterwards.
*/
type AgentCard struct {
	// Name is the name of the agent
	Name string `json:"name"`
	// Description is a description of the agent
	Description string `json:"description"`
	// URL is the base endpoint for interacting with the agent
	URL string `json:"endpoint"`
	// Skills is the list of skills the agent has
	Skills []AgentSkill `json:"skills"`
	// Version is the version identifier for the agent
	Version string `json:"version"`
	// Protocol marks the protocol revision the agent speaks
	Protocol string `json:"protocol"`
}

/*
CardFromConfig builds the agent card from the viper configuration under the
"agent" key.
*/
func CardFromConfig(v *viper.Viper) AgentCard {
	var skills []AgentSkill

	raws, _ := v.Get("agent.skills").([]any)

	for _, raw := range raws {
		skill, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		skills = append(skills, AgentSkill{
			ID:          asString(skill["id"]),
			Name:        asString(skill["name"]),
			Description: asString(skill["description"]),
		})
	}

	return AgentCard{
		Name:        v.GetString("agent.name"),
		Description: v.GetString("agent.description"),
		URL:         v.GetString("agent.url"),
		Skills:      skills,
		Version:     v.GetString("agent.version"),
		Protocol:    "a2a-1.0",
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
