package achievement

// SystemCatalog lists the achievements every tenant starts with.
func SystemCatalog() []Definition {
	return []Definition{
		{Code: "first_sale", Name: "First sale", Description: "Converted the first lead into a sale", Category: CategorySales, Tier: TierBronze, Points: 50, Trigger: TriggerThreshold, Metric: "leads_converted", TargetValue: 1},
		{Code: "sales_10", Name: "Seller", Description: "10 leads converted", Category: CategorySales, Tier: TierBronze, Points: 100, Trigger: TriggerCumulative, Metric: "leads_converted", TargetValue: 10},
		{Code: "sales_50", Name: "Professional seller", Description: "50 leads converted", Category: CategorySales, Tier: TierSilver, Points: 250, Trigger: TriggerCumulative, Metric: "leads_converted", TargetValue: 50},
		{Code: "sales_100", Name: "Sales master", Description: "100 leads converted", Category: CategorySales, Tier: TierGold, Points: 500, Trigger: TriggerCumulative, Metric: "leads_converted", TargetValue: 100},
		{Code: "sales_500", Name: "Sales legend", Description: "500 leads converted", Category: CategorySales, Tier: TierDiamond, Points: 2000, Trigger: TriggerCumulative, Metric: "leads_converted", TargetValue: 500},
		{Code: "calls_100", Name: "Phone pro", Description: "100 calls made", Category: CategoryActivity, Tier: TierBronze, Points: 100, Trigger: TriggerCumulative, Metric: "calls_made", TargetValue: 100},
		{Code: "calls_1000", Name: "Call machine", Description: "1000 calls made", Category: CategoryActivity, Tier: TierGold, Points: 500, Trigger: TriggerCumulative, Metric: "calls_made", TargetValue: 1000},
		{Code: "tasks_100", Name: "Task finisher", Description: "100 tasks completed", Category: CategoryActivity, Tier: TierSilver, Points: 200, Trigger: TriggerCumulative, Metric: "tasks_completed", TargetValue: 100},
		{Code: "streak_7", Name: "Weekly streak", Description: "Target reached 7 days in a row", Category: CategoryStreak, Tier: TierBronze, Points: 100, Trigger: TriggerStreak, Metric: "streak_days", TargetValue: 7},
		{Code: "streak_30", Name: "Monthly streak", Description: "Target reached 30 days in a row", Category: CategoryStreak, Tier: TierGold, Points: 500, Trigger: TriggerStreak, Metric: "streak_days", TargetValue: 30},
		{Code: "streak_100", Name: "Streak monster", Description: "Target reached 100 days in a row", Category: CategoryStreak, Tier: TierDiamond, Points: 2000, Trigger: TriggerStreak, Metric: "streak_days", TargetValue: 100},
		{Code: "first_gold", Name: "Gold medal", Description: "First gold medal", Category: CategoryMilestone, Tier: TierGold, Points: 300, Trigger: TriggerThreshold, Metric: "gold_medals", TargetValue: 1},
		{Code: "champion", Name: "Champion", Description: "First place five times", Category: CategoryMilestone, Tier: TierPlatinum, Points: 1000, Trigger: TriggerCumulative, Metric: "first_place_count", TargetValue: 5},
		{Code: "perfect_day", Name: "Perfect day", Description: "KPI score of 100", Category: CategoryQuality, Tier: TierSilver, Points: 150, Trigger: TriggerThreshold, Metric: "kpi_score", TargetValue: 100},
	}
}
