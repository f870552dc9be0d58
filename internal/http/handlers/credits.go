package handlers

import "net/http"

type creditsResponse struct {
	AccountID string `json:"account_id"`
	Credits   int    `json:"credits"`
}

func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	accountID, err := a.accountID(r)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	acct, err := a.Accounts.GetAccount(r.Context(), accountID)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, creditsResponse{AccountID: acct.ID, Credits: acct.Credits})
}
