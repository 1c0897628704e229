// Package reports serves the read-only dashboard and period statistics.
package reports

import (
	"github.com/shopspring/decimal"
)

// Dashboard is the headline card set.
type Dashboard struct {
	TotalProducts  int             `json:"totalProducts"`
	TotalSales     int             `json:"totalSales"`
	TotalRevenue   decimal.Decimal `json:"totalRevenue"`
	LowStockItems  int             `json:"lowStockItems"`
	TotalCustomers int             `json:"totalCustomers"`
}

// MonthlySales is one month's completed sales.
type MonthlySales struct {
	Month        int             `json:"month"`
	TotalSales   int             `json:"totalSales"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
}

// TopProduct ranks products by units sold.
type TopProduct struct {
	ProductID    int64           `json:"productId"`
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	TotalSold    int64           `json:"totalSold"`
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
}

// ProductStats is the stock value of products added in the period.
type ProductStats struct {
	Count      int             `json:"count"`
	StockValue decimal.Decimal `json:"totalProduct"`
}

// SalesStats sums completed sales dated in the period.
type SalesStats struct {
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"totalSaleTotal"`
	Paid   decimal.Decimal `json:"totalSalePaidAmount"`
	Credit decimal.Decimal `json:"totalCredit"`
}

// SalaryStats sums net salaries paid in the period.
type SalaryStats struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"totalSalary"`
}

// BorrowStats sums lender records opened in the period.
type BorrowStats struct {
	Count     int             `json:"count"`
	Total     decimal.Decimal `json:"totalItemsSum"`
	Paid      decimal.Decimal `json:"totalBorrowPaidAmount"`
	Remaining decimal.Decimal `json:"remaining"`
}

// ExpenseStats sums petty-cash spending in the period.
type ExpenseStats struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"totalExpenditure"`
}

// MonthStatistic is the month close-out sheet.
type MonthStatistic struct {
	Year     int          `json:"year"`
	Month    int          `json:"month"`
	Products ProductStats `json:"products"`
	Sales    SalesStats   `json:"sales"`
	Salary   SalaryStats  `json:"salary"`
	Borrow   BorrowStats  `json:"borrow"`
	Expenses ExpenseStats `json:"expenses"`
}
