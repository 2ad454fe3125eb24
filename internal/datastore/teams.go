package datastore

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/pulsevault/pulsevault/pkg/models"
)

// AddTeam creates a team owned by ownerID.
func (inst *Instance) AddTeam(tx dbtx, team models.TeamRequest, ownerID int64) error {
	if _, err := tx.Exec(
		`INSERT INTO Teams (name, description, ownerId) VALUES (?, ?, ?)`,
		team.Name, team.Description, ownerID,
	); err != nil {
		return errInternal("failed to insert team: %v", err)
	}
	return nil
}

// GetTeams lists the teams owned by ownerID.
func (inst *Instance) GetTeams(tx dbtx, ownerID int64) ([]models.Team, error) {
	rows, err := tx.Query(
		`SELECT id, name, description, ownerId FROM Teams WHERE ownerId = ?`,
		ownerID,
	)
	if err != nil {
		return nil, errInternal("failed to query teams: %v", err)
	}
	defer rows.Close()

	teams := []models.Team{}
	for rows.Next() {
		var t models.Team
		var description sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &description, &t.OwnerID); err != nil {
			return nil, errInternal("failed to scan team row: %v", err)
		}
		t.Description = description.String
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errInternal("failed to iterate teams: %v", err)
	}
	return teams, nil
}

// GetTeam returns a team by id.
func (inst *Instance) GetTeam(tx dbtx, teamID int64) (models.Team, error) {
	var t models.Team
	var description sql.NullString
	err := tx.QueryRow(
		`SELECT id, name, description, ownerId FROM Teams WHERE id = ?`,
		teamID,
	).Scan(&t.ID, &t.Name, &description, &t.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Team{}, errNoSuchTeam(teamID)
		}
		return models.Team{}, errInternal("failed to query team %d: %v", teamID, err)
	}
	t.Description = description.String
	return t, nil
}

// GetTeamMembersCount counts a team's membership rows.
func (inst *Instance) GetTeamMembersCount(tx dbtx, teamID int64) (int64, error) {
	var count int64
	if err := tx.QueryRow(
		`SELECT COUNT(*) FROM TeamsUsers WHERE teamId = ?`, teamID,
	).Scan(&count); err != nil {
		return 0, errInternal("failed to count team members: %v", err)
	}
	return count, nil
}

// GetTeamMembers lists the members of a team joined with their user rows.
func (inst *Instance) GetTeamMembers(tx dbtx, teamID int64) ([]models.Member, error) {
	rows, err := tx.Query(
		`SELECT tu.id, u.id, u.name, u.lastname, u.email
		 FROM TeamsUsers tu
		 INNER JOIN Users u ON tu.userId = u.id
		 WHERE tu.teamId = ?`,
		teamID,
	)
	if err != nil {
		return nil, errInternal("failed to query team members: %v", err)
	}
	defer rows.Close()

	members := []models.Member{}
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &m.Lastname, &m.Email); err != nil {
			return nil, errInternal("failed to scan member row: %v", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errInternal("failed to iterate team members: %v", err)
	}
	return members, nil
}

// AddMembers adds each user to the team. A row-level failure aborts the
// batch, leaving earlier additions applied.
func (inst *Instance) AddMembers(tx dbtx, teamID int64, userIDs []int64) error {
	for _, userID := range userIDs {
		if _, err := tx.Exec(
			`INSERT INTO TeamsUsers (teamId, userId) VALUES (?, ?)`,
			teamID, userID,
		); err != nil {
			return errInternal("failed to add user %d to team %d: %v", userID, teamID, err)
		}
	}
	return nil
}

// RemoveMember deletes a membership row by its id.
func (inst *Instance) RemoveMember(tx dbtx, teamID, memberID int64) error {
	if _, err := tx.Exec(`DELETE FROM TeamsUsers WHERE id = ?`, memberID); err != nil {
		return errInternal("failed to remove member %d from team %d: %v", memberID, teamID, err)
	}
	return nil
}

// GetUserTeams lists the teams the user belongs to.
func (inst *Instance) GetUserTeams(tx dbtx, userID int64) ([]models.TeamSummary, error) {
	rows, err := tx.Query(
		`SELECT t.id, t.name, t.description
		 FROM TeamsUsers tu
		 INNER JOIN Teams t ON tu.teamId = t.id
		 WHERE tu.userId = ?`,
		userID,
	)
	if err != nil {
		return nil, errInternal("failed to query user teams: %v", err)
	}
	defer rows.Close()

	teams := []models.TeamSummary{}
	for rows.Next() {
		var t models.TeamSummary
		var description sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &description); err != nil {
			return nil, errInternal("failed to scan user team row: %v", err)
		}
		t.Description = description.String
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errInternal("failed to iterate user teams: %v", err)
	}
	return teams, nil
}

// AddTeamConfiguration stores the app allow-list for a team.
func (inst *Instance) AddTeamConfiguration(tx dbtx, teamID int64, apps string) error {
	if _, err := tx.Exec(
		`INSERT INTO TeamConfiguration (teamId, apps) VALUES (?, ?)`,
		teamID, apps,
	); err != nil {
		return errInternal("failed to add configuration for team %d: %v", teamID, err)
	}
	return nil
}

// UpdateTeamConfiguration replaces the app allow-list for a team.
func (inst *Instance) UpdateTeamConfiguration(tx dbtx, teamID int64, apps string) error {
	if _, err := tx.Exec(
		`UPDATE TeamConfiguration SET apps = ? WHERE teamId = ?`,
		apps, teamID,
	); err != nil {
		return errInternal("failed to update configuration for team %d: %v", teamID, err)
	}
	return nil
}

// GetTeamConfiguration returns a team's configuration with the allow-list
// split out of its comma-separated storage form.
func (inst *Instance) GetTeamConfiguration(tx dbtx, teamID int64) (models.TeamConfiguration, error) {
	var cfg models.TeamConfiguration
	var apps sql.NullString
	err := tx.QueryRow(
		`SELECT id, teamId, apps FROM TeamConfiguration WHERE teamId = ?`,
		teamID,
	).Scan(&cfg.ID, &cfg.TeamID, &apps)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.TeamConfiguration{}, errNoSuchTeam(teamID)
		}
		return models.TeamConfiguration{}, errInternal("failed to query configuration for team %d: %v", teamID, err)
	}
	cfg.Apps = []string{}
	if apps.Valid && apps.String != "" {
		cfg.Apps = strings.Split(apps.String, ",")
	}
	return cfg, nil
}
